// Package hub fans auction messages out to connected clients.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/auction-backend/pkg/types"
)

type HubMsg interface{ isHubMsg() }

// Subscribe registers an outbox. Initial, when set, is delivered before any
// later broadcast.
type Subscribe struct {
	ClientID string
	Outbox   chan types.ServerMessage
	Initial  *types.ServerMessage
}

type Unsubscribe struct {
	ClientID string
}

// Broadcast sends Msgs, in order, to every subscriber.
type Broadcast struct {
	Msgs []types.ServerMessage
}

// Direct sends one message to a single subscriber.
type Direct struct {
	ClientID string
	Msg      types.ServerMessage
}

type GetCount struct {
	Reply chan int
}

type ShutdownHub struct{}

func (Subscribe) isHubMsg()   {}
func (Unsubscribe) isHubMsg() {}
func (Broadcast) isHubMsg()   {}
func (Direct) isHubMsg()      {}
func (GetCount) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the subscriber set. A subscriber whose outbox is full is dropped and
// its outbox closed; the hub never blocks on a client.
type Hub struct {
	inbox   chan HubMsg
	clients map[string]chan types.ServerMessage
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *zap.Logger
}

func NewHub(parent context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 256),
		clients: make(map[string]chan types.ServerMessage),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go h.loop()
	return h
}

// Send queues msg for the hub. It gives up once the hub has stopped.
func (h *Hub) Send(msg HubMsg) {
	select {
	case h.inbox <- msg:
	case <-h.done:
	}
}

// Done is closed once the hub has shut down and closed every outbox.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Subscribe:
				if old, ok := h.clients[msg.ClientID]; ok {
					close(old)
				}
				h.clients[msg.ClientID] = msg.Outbox
				if msg.Initial != nil {
					h.deliver(msg.ClientID, *msg.Initial)
				}

			case Unsubscribe:
				if ch, ok := h.clients[msg.ClientID]; ok {
					close(ch)
					delete(h.clients, msg.ClientID)
				}

			case Broadcast:
				for _, out := range msg.Msgs {
					for id := range h.clients {
						h.deliver(id, out)
					}
				}

			case Direct:
				h.deliver(msg.ClientID, msg.Msg)

			case GetCount:
				msg.Reply <- len(h.clients)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) deliver(id string, msg types.ServerMessage) {
	ch, ok := h.clients[id]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		// Client is slow/full - drop them.
		h.logger.Info("dropping slow subscriber", zap.String("client", id))
		close(ch)
		delete(h.clients, id)
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.cancel()
}
