package engine

import (
	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/auction-backend/internal/roster"
)

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseBidding       Phase = "bidding"
	PhaseSoleBidder    Phase = "sole_bidder"
	PhaseRTMDeciding   Phase = "rtm_deciding"
	PhaseSettling      Phase = "settling"
	PhaseRoundComplete Phase = "round_complete"
)

// Active reports whether a lot is in progress.
func (p Phase) Active() bool {
	switch p {
	case PhaseBidding, PhaseSoleBidder, PhaseRTMDeciding, PhaseSettling:
		return true
	}
	return false
}

type TimerKind string

const (
	TimerNone TimerKind = ""
	TimerBid  TimerKind = "bid"
	TimerRTM  TimerKind = "rtm"
)

// Timer is the single countdown slot. Holding one Kind keeps the bid and RTM
// countdowns mutually exclusive; Gen changes on every arm and disarm.
type Timer struct {
	Kind      TimerKind
	Remaining int
	Gen       uint64
}

// Resolution is the (winner, price, rtmUsed) triple handed to settlement.
type Resolution struct {
	Winner  string
	Price   decimal.Decimal
	RTMUsed bool
}

// Lot is the per-player auction state; nil while idle.
type Lot struct {
	PlayerID string
	Bid      decimal.Decimal
	Leader   string
	Out      map[string]bool

	// RTMTeam is set while the home franchise decides; Leader and Bid are then
	// the pending winner and price.
	RTMTeam    string
	Resolution *Resolution
}

type TeamState struct {
	ID      string
	Budget  decimal.Decimal
	RTMUsed bool
	Squad   []string
}

type SaleRecord struct {
	PlayerID string
	TeamID   string
	Price    decimal.Decimal
	RTMUsed  bool
}

type Rules struct {
	BidTimerTicks int
	RTMTimerTicks int
}

type State struct {
	Phase Phase
	Lot   *Lot
	Teams map[string]*TeamState
	Sold  map[string]string // player id -> team id
	Sales []SaleRecord
	Order []string
	Turn  int // index into Order, -1 when no team holds the turn
	Timer Timer
	Rules Rules

	Catalog *roster.Catalog
}

type CommandType string

const (
	CmdInitialize   CommandType = "Initialize"
	CmdNominate     CommandType = "Nominate"
	CmdBid          CommandType = "Bid"
	CmdMarkOut      CommandType = "MarkOut"
	CmdUnmarkOut    CommandType = "UnmarkOut"
	CmdRTMDecision  CommandType = "RTMDecision"
	CmdTimerTick    CommandType = "TimerTick"
	CmdTimerExpired CommandType = "TimerExpired"
	CmdCompleteLot  CommandType = "CompleteLot"
	CmdResetLot     CommandType = "ResetLot"
	CmdFullReset    CommandType = "FullReset"
)

/*
	CmdNominate     -> auction_start [-> timer armed when only the nominator can bid]
	CmdBid          -> bid_update    [-> countdown armed/disarmed by contender count]
	CmdMarkOut      -> team_out      [-> bid countdown armed at one contender]
	CmdTimerTick    -> timer_tick | rtm_timer_tick, and at zero CmdTimerExpired
	CmdTimerExpired -> rtm_opportunity (RTM countdown armed) | lot_resolved
	CmdRTMDecision  -> rtm_accepted | rtm_declined -> lot_resolved
	Settle          -> auction_complete -> turn_change | round_complete
*/

type Command struct {
	Type     CommandType
	Team     string
	PlayerID string
	Amount   decimal.Decimal // bid increment, or the admin price for CmdCompleteLot
	Accept   bool
	Admin    bool
	Gen      uint64
}

type EventType string

const (
	EvtOrderInitialized EventType = "order_initialized"
	EvtAuctionStart     EventType = "auction_start"
	EvtBidUpdate        EventType = "bid_update"
	EvtTeamOut          EventType = "team_out"
	EvtTeamIn           EventType = "team_in"
	EvtTimerTick        EventType = "timer_tick"
	EvtRTMTimerTick     EventType = "rtm_timer_tick"
	EvtRTMOpportunity   EventType = "rtm_opportunity"
	EvtRTMAccepted      EventType = "rtm_accepted"
	EvtRTMDeclined      EventType = "rtm_declined"
	EvtLotResolved      EventType = "lot_resolved"
	EvtAuctionComplete  EventType = "auction_complete"
	EvtTurnChange       EventType = "turn_change"
	EvtRoundComplete    EventType = "round_complete"
	EvtLotReset         EventType = "lot_reset"
	EvtFullReset        EventType = "full_reset"
)

type Event struct {
	Type     EventType
	Team     string
	PlayerID string
	Amount   decimal.Decimal
	RTM      bool
}

// Apply validates cmd against s and, when accepted, returns the events and the
// successor state. On error s is returned untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if err := Validate(s, cmd); err != nil {
		return nil, s, err
	}

	next := s.Clone()
	var events []Event

	switch cmd.Type {
	case CmdInitialize:
		order := next.Catalog.TeamIDs()
		shuffleTeams(order)
		next.Order = order
		next.Turn = -1
		next.Phase = PhaseIdle
		events = append(events, Event{Type: EvtOrderInitialized})
		// Validate guaranteed at least one eligible team.
		events = append(events, next.advance()...)

	case CmdNominate:
		player, _ := next.Catalog.Player(cmd.PlayerID)
		next.Lot = &Lot{
			PlayerID: player.ID,
			Bid:      player.BasePrice,
			Leader:   cmd.Team,
			Out:      map[string]bool{},
		}
		next.Phase = PhaseBidding
		events = append(events, Event{Type: EvtAuctionStart, Team: cmd.Team, PlayerID: player.ID, Amount: player.BasePrice})
		events = append(events, next.reconcileCountdown(true)...)

	case CmdBid:
		lot := next.Lot
		lot.Bid = lot.Bid.Add(cmd.Amount)
		lot.Leader = cmd.Team
		delete(lot.Out, cmd.Team)
		events = append(events, Event{Type: EvtBidUpdate, Team: cmd.Team, PlayerID: lot.PlayerID, Amount: lot.Bid})
		events = append(events, next.reconcileCountdown(true)...)

	case CmdMarkOut:
		next.Lot.Out[cmd.Team] = true
		events = append(events, Event{Type: EvtTeamOut, Team: cmd.Team, PlayerID: next.Lot.PlayerID})
		events = append(events, next.reconcileCountdown(false)...)

	case CmdUnmarkOut:
		delete(next.Lot.Out, cmd.Team)
		events = append(events, Event{Type: EvtTeamIn, Team: cmd.Team, PlayerID: next.Lot.PlayerID})
		events = append(events, next.reconcileCountdown(false)...)

	case CmdTimerTick:
		next.Timer.Remaining--
		tick := EvtTimerTick
		if next.Timer.Kind == TimerRTM {
			tick = EvtRTMTimerTick
		}
		events = append(events, Event{Type: tick, Team: next.Timer.timerTeam(next.Lot)})
		if next.Timer.Remaining > 0 {
			break
		}
		more, after, err := Apply(next, Command{Type: CmdTimerExpired, Gen: next.Timer.Gen})
		if err != nil {
			return nil, s, err
		}
		return append(events, more...), after, nil

	case CmdTimerExpired:
		if next.Timer.Kind == TimerRTM {
			lot := next.Lot
			events = append(events, Event{Type: EvtRTMDeclined, Team: lot.RTMTeam, PlayerID: lot.PlayerID})
			events = append(events, next.resolve(lot.Leader, lot.Bid, false)...)
			break
		}
		if team, ok := next.rtmCandidate(); ok {
			next.Lot.RTMTeam = team
			next.Phase = PhaseRTMDeciding
			next.arm(TimerRTM, next.Rules.RTMTimerTicks)
			events = append(events, Event{Type: EvtRTMOpportunity, Team: team, PlayerID: next.Lot.PlayerID, Amount: next.Lot.Bid})
			break
		}
		events = append(events, next.resolve(next.Lot.Leader, next.Lot.Bid, false)...)

	case CmdRTMDecision:
		lot := next.Lot
		if cmd.Accept {
			events = append(events, Event{Type: EvtRTMAccepted, Team: cmd.Team, PlayerID: lot.PlayerID, Amount: lot.Bid, RTM: true})
			events = append(events, next.resolve(cmd.Team, lot.Bid, true)...)
			break
		}
		events = append(events, Event{Type: EvtRTMDeclined, Team: cmd.Team, PlayerID: lot.PlayerID})
		events = append(events, next.resolve(lot.Leader, lot.Bid, false)...)

	case CmdCompleteLot:
		events = append(events, next.resolve(cmd.Team, cmd.Amount, false)...)

	case CmdResetLot:
		player := next.Lot.PlayerID
		next.Lot = nil
		next.Phase = PhaseIdle
		next.disarm()
		events = append(events, Event{Type: EvtLotReset, PlayerID: player})

	case CmdFullReset:
		fresh := NewState(next.Catalog, next.Rules)
		fresh.Timer.Gen = next.Timer.Gen + 1
		next = fresh
		events = append(events, Event{Type: EvtFullReset})

	default:
		return nil, s, reject(CodeInvalidRequest, "unsupported command %q", cmd.Type)
	}

	return events, next, nil
}

// resolve moves the lot to Settling with the given outcome.
func (s *State) resolve(winner string, price decimal.Decimal, rtm bool) []Event {
	s.Lot.Resolution = &Resolution{Winner: winner, Price: price, RTMUsed: rtm}
	s.Phase = PhaseSettling
	s.disarm()
	return []Event{{Type: EvtLotResolved, Team: winner, PlayerID: s.Lot.PlayerID, Amount: price, RTM: rtm}}
}

// reconcileCountdown moves between Bidding and SoleBidder after the contender
// set may have changed. leaderChanged re-arms a running bid countdown.
func (s *State) reconcileCountdown(leaderChanged bool) []Event {
	if s.contenders() > 1 {
		if s.Phase == PhaseSoleBidder {
			s.disarm()
		}
		s.Phase = PhaseBidding
		return nil
	}
	if s.Phase == PhaseSoleBidder && !leaderChanged {
		return nil
	}
	s.Phase = PhaseSoleBidder
	s.arm(TimerBid, s.Rules.BidTimerTicks)
	return []Event{{Type: EvtTimerTick, Team: s.Lot.Leader}}
}

// contenders counts teams still in the lot: the leader plus every team not
// marked out that could legally raise by the minimum increment. The player's
// home franchise is not counted while it holds an unused match right; it gets
// its say when the countdown expires.
func (s *State) contenders() int {
	player, _ := s.Catalog.Player(s.Lot.PlayerID)
	n := 0
	for _, id := range s.Catalog.TeamIDs() {
		if s.Lot.Out[id] {
			continue
		}
		if id == player.HomeTeam && id != s.Lot.Leader && !s.Teams[id].RTMUsed {
			continue
		}
		if id == s.Lot.Leader || s.canRaise(id) {
			n++
		}
	}
	return n
}

func (s *State) canRaise(teamID string) bool {
	t := s.Teams[teamID]
	limits := s.Catalog.Limits
	if len(t.Squad) >= limits.MaxSquad {
		return false
	}
	player, _ := s.Catalog.Player(s.Lot.PlayerID)
	if player.Overseas && s.overseasFull(teamID) {
		return false
	}
	if limits.MinIncrement.IsPositive() {
		return t.Budget.GreaterThanOrEqual(s.minimumRaise())
	}
	return t.Budget.GreaterThan(s.Lot.Bid)
}

// rtmCandidate returns the sold player's home franchise when it may match.
func (s *State) rtmCandidate() (string, bool) {
	player, _ := s.Catalog.Player(s.Lot.PlayerID)
	home := player.HomeTeam
	t, ok := s.Teams[home]
	if home == "" || !ok {
		return "", false
	}
	switch {
	case t.RTMUsed,
		home == s.Lot.Leader,
		s.Lot.Out[home],
		t.Budget.LessThan(s.Lot.Bid),
		len(t.Squad) >= s.Catalog.Limits.MaxSquad,
		player.Overseas && s.overseasFull(home):
		return "", false
	}
	return home, true
}

func (s *State) arm(kind TimerKind, ticks int) {
	if ticks < 1 {
		ticks = 1
	}
	s.Timer = Timer{Kind: kind, Remaining: ticks, Gen: s.Timer.Gen + 1}
}

func (s *State) disarm() {
	if s.Timer.Kind == TimerNone {
		return
	}
	s.Timer = Timer{Gen: s.Timer.Gen + 1}
}

func (t Timer) timerTeam(lot *Lot) string {
	if lot == nil {
		return ""
	}
	if t.Kind == TimerRTM {
		return lot.RTMTeam
	}
	return lot.Leader
}
