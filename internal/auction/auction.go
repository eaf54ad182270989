// Package auction runs the single writer that owns the live auction state.
// Every command, timer tick and settlement passes through one inbox, so
// transitions are serialized and broadcasts follow commit order.
package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/roster"
	"github.com/DoyleJ11/auction-backend/pkg/types"
)

// Store is the durable sale log.
type Store interface {
	AppendSale(ctx context.Context, rec engine.SaleRecord) error
	TruncateSales(ctx context.Context) error
}

type SaleSource interface {
	LoadSales(ctx context.Context) ([]engine.SaleRecord, error)
}

// Recover builds the starting state for c by replaying every stored sale.
func Recover(ctx context.Context, c *roster.Catalog, rules engine.Rules, src SaleSource) (engine.State, error) {
	records, err := src.LoadSales(ctx)
	if err != nil {
		return engine.State{}, fmt.Errorf("load sales: %w", err)
	}
	return engine.Replay(engine.NewState(c, rules), records)
}

type Options struct {
	Tick           time.Duration
	PersistTimeout time.Duration
	PersistRetries int
	PersistBackoff time.Duration
}

type Msg interface{ isAuctionMsg() }

// FromClient carries a command. Reply, when set, receives nil or the rejection.
type FromClient struct {
	Cmd   engine.Command
	Reply chan error
}

// Join subscribes a client; its first message is the current snapshot.
type Join struct {
	ClientID string
	Outbox   chan types.ServerMessage
}

type Leave struct{ ClientID string }

type GetState struct {
	Reply chan View
}

// RetrySettlement re-attempts a settlement held after persistence failed.
type RetrySettlement struct {
	Reply chan error
}

type Shutdown struct{}

type timerFired struct{ Gen uint64 }

func (FromClient) isAuctionMsg()      {}
func (Join) isAuctionMsg()            {}
func (Leave) isAuctionMsg()           {}
func (GetState) isAuctionMsg()        {}
func (RetrySettlement) isAuctionMsg() {}
func (Shutdown) isAuctionMsg()        {}
func (timerFired) isAuctionMsg()      {}

// View is a point-in-time copy of the auction for readers.
type View struct {
	Version      int
	State        engine.State
	SettleFailed bool
}

type Auction struct {
	inbox   chan Msg
	state   engine.State
	version int
	hub     *hub.Hub
	store   Store
	opts    Options
	logger  *zap.Logger

	timerGen     uint64
	stopTimer    context.CancelFunc
	settleFailed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, initial engine.State, h *hub.Hub, st Store, opts Options, logger *zap.Logger) *Auction {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.PersistRetries < 1 {
		opts.PersistRetries = 1
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)
	a := &Auction{
		inbox:  make(chan Msg, 64),
		state:  initial,
		hub:    h,
		store:  st,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

// Inbox exposes the writer's queue to transports and tests.
func (a *Auction) Inbox() chan<- Msg { return a.inbox }

// Done is closed when the writer has stopped.
func (a *Auction) Done() <-chan struct{} { return a.done }

var ErrStopped = errors.New("auction stopped")

// Submit queues cmd and waits for its outcome.
func (a *Auction) Submit(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	if err := a.send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return err
	}
	return a.await(ctx, reply)
}

// Retry re-attempts a held settlement.
func (a *Auction) Retry(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := a.send(ctx, RetrySettlement{Reply: reply}); err != nil {
		return err
	}
	return a.await(ctx, reply)
}

// View returns a copy of the current state.
func (a *Auction) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := a.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-a.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (a *Auction) send(ctx context.Context, m Msg) error {
	select {
	case a.inbox <- m:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Auction) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Auction) loop() {
	defer close(a.done)
	defer a.haltTimer()
	for {
		select {
		case <-a.ctx.Done():
			return

		case m := <-a.inbox:
			switch msg := m.(type) {
			case Join:
				initial := a.snapshotMessage()
				a.hub.Send(hub.Subscribe{ClientID: msg.ClientID, Outbox: msg.Outbox, Initial: &initial})

			case Leave:
				a.hub.Send(hub.Unsubscribe{ClientID: msg.ClientID})

			case FromClient:
				err := a.handle(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case timerFired:
				a.tick(msg.Gen)

			case RetrySettlement:
				msg.Reply <- a.retrySettlement()

			case GetState:
				msg.Reply <- View{Version: a.version, State: a.state.Clone(), SettleFailed: a.settleFailed}

			case Shutdown:
				a.cancel()
				return
			}
		}
	}
}

func (a *Auction) handle(cmd engine.Command) error {
	if cmd.Type == engine.CmdFullReset {
		return a.fullReset(cmd)
	}
	events, next, err := engine.Apply(a.state, cmd)
	if err != nil {
		a.logRejection(cmd, err)
		return err
	}
	return a.commit(events, next)
}

// fullReset erases the durable sale log before clearing memory, so a restart
// cannot resurrect sales the operator discarded.
func (a *Auction) fullReset(cmd engine.Command) error {
	if err := engine.Validate(a.state, cmd); err != nil {
		a.logRejection(cmd, err)
		return err
	}
	ctx, cancel := context.WithTimeout(a.ctx, a.opts.PersistTimeout)
	defer cancel()
	if err := a.store.TruncateSales(ctx); err != nil {
		a.logger.Error("truncate sales failed", zap.Error(err))
		return persistenceError(err)
	}
	events, next, err := engine.Apply(a.state, cmd)
	if err != nil {
		return err
	}
	return a.commit(events, next)
}

func (a *Auction) tick(gen uint64) {
	events, next, err := engine.Apply(a.state, engine.Command{Type: engine.CmdTimerTick, Gen: gen})
	if errors.Is(err, engine.ErrStaleTimer) {
		return
	}
	if err != nil {
		a.logger.Error("timer tick rejected", zap.Uint64("gen", gen), zap.Error(err))
		return
	}
	// A held settlement is already logged and broadcast; no caller waits on a tick.
	_ = a.commit(events, next)
}

// commit installs next, broadcasts one message per event, keeps the ticker in
// step with the state's timer and settles a resolved lot. The returned error
// is the settlement's: the command itself is committed either way.
func (a *Auction) commit(events []engine.Event, next engine.State) error {
	a.state = next
	a.version++
	if a.state.Phase != engine.PhaseSettling {
		a.settleFailed = false
	}

	if err := engine.CheckInvariants(a.state); err != nil {
		a.logger.Error("invariant violated", zap.Int("version", a.version), zap.Error(err))
	}
	if ce := a.logger.Check(zap.DebugLevel, "committed"); ce != nil {
		ce.Write(
			zap.Int("version", a.version),
			zap.String("phase", string(a.state.Phase)),
			zap.Strings("events", eventTags(events)),
		)
	}

	a.publish(events)
	a.syncTimer()

	if a.state.Phase == engine.PhaseSettling && !a.settleFailed {
		return a.settle()
	}
	return nil
}

func (a *Auction) publish(events []engine.Event) {
	snap := Snapshot(a.state, a.version, a.settleFailed)
	msgs := make([]types.ServerMessage, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, types.ServerMessage{
			Type:    types.MsgEvent,
			Event:   EventDTO(e),
			Version: a.version,
			State:   &snap,
		})
	}
	if len(msgs) > 0 {
		a.hubBroadcast(msgs...)
	}
}

func (a *Auction) hubBroadcast(msgs ...types.ServerMessage) {
	a.hub.Send(hub.Broadcast{Msgs: msgs})
}

func (a *Auction) snapshotMessage() types.ServerMessage {
	snap := Snapshot(a.state, a.version, a.settleFailed)
	return types.ServerMessage{Type: types.MsgSnapshot, Version: a.version, State: &snap}
}

func (a *Auction) logRejection(cmd engine.Command, err error) {
	var rej *engine.RejectError
	code := ""
	if errors.As(err, &rej) {
		code = string(rej.Code)
	}
	a.logger.Info("command rejected",
		zap.String("command", string(cmd.Type)),
		zap.String("team", cmd.Team),
		zap.String("code", code),
		zap.Error(err),
	)
}

func eventTags(events []engine.Event) []string {
	tags := make([]string, len(events))
	for i, e := range events {
		tags[i] = string(e.Type)
	}
	return tags
}
