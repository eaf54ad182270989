package engine

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/auction-backend/internal/roster"
)

func money(f float64) decimal.Decimal { return roster.Money(f) }

func testLimits() roster.Limits {
	return roster.Limits{
		InitialBudget:  money(100),
		MaxSquad:       18,
		MaxOverseas:    2,
		MinViableBid:   money(0.5),
		MinIncrement:   money(0.5),
		MinPerPosition: map[roster.Position]int{},
	}
}

// fillers returns n cheap batters used to pad squads through Replay.
func fillers(n int) []roster.Player {
	out := make([]roster.Player, n)
	for i := range out {
		out[i] = roster.Player{ID: fmt.Sprintf("f%02d", i), Name: "Filler", Position: roster.PositionBatter, BasePrice: money(0.5)}
	}
	return out
}

func basePlayers() []roster.Player {
	return []roster.Player{
		{ID: "bat", Name: "Opener", Position: roster.PositionBatter, BasePrice: money(0.5)},
		{ID: "bowl", Name: "Quick", Position: roster.PositionBowler, BasePrice: money(1)},
		{ID: "keep", Name: "Gloves", Position: roster.PositionKeeper, BasePrice: money(0.5)},
		{ID: "os", Name: "Import", Position: roster.PositionAllRounder, BasePrice: money(0.5), Overseas: true},
	}
}

// withHome adds two players whose home franchise is team y.
func withHome(players []roster.Player) []roster.Player {
	return append(players,
		roster.Player{ID: "home", Name: "Local Hero", Position: roster.PositionBatter, BasePrice: money(0.5), HomeTeam: "y"},
		roster.Player{ID: "home2", Name: "Local Hero II", Position: roster.PositionBowler, BasePrice: money(0.5), HomeTeam: "y"},
	)
}

func newTestState(t *testing.T, limits roster.Limits, teams []string, players []roster.Player) State {
	t.Helper()
	ts := make([]roster.Team, len(teams))
	for i, id := range teams {
		ts[i] = roster.Team{ID: id, Name: id}
	}
	c, err := roster.NewCatalog(limits, ts, players)
	require.NoError(t, err)
	return NewState(c, Rules{BidTimerTicks: 30, RTMTimerTicks: 30})
}

func fixedOrder(t *testing.T) {
	t.Helper()
	orig := shuffleTeams
	shuffleTeams = func([]string) {}
	t.Cleanup(func() { shuffleTeams = orig })
}

// mustApply applies cmd, requires success and checks every invariant.
func mustApply(t *testing.T, s State, cmd Command) ([]Event, State) {
	t.Helper()
	events, next, err := Apply(s, cmd)
	require.NoError(t, err, "command %s", cmd.Type)
	require.NoError(t, CheckInvariants(next), "invariants after %s", cmd.Type)
	return events, next
}

func mustSettle(t *testing.T, s State) ([]Event, State) {
	t.Helper()
	events, next, err := Settle(s)
	require.NoError(t, err)
	require.NoError(t, CheckInvariants(next))
	return events, next
}

// runCountdown ticks the current countdown to expiry.
func runCountdown(t *testing.T, s State) ([]Event, State) {
	t.Helper()
	require.NotEqual(t, TimerNone, s.Timer.Kind, "no countdown armed")
	var all []Event
	for s.Timer.Kind != TimerNone {
		kind := s.Timer.Kind
		var events []Event
		events, s = mustApply(t, s, Command{Type: CmdTimerTick, Gen: s.Timer.Gen})
		all = append(all, events...)
		if s.Timer.Kind != kind {
			break
		}
	}
	return all, s
}

func initialized(t *testing.T, teams []string, players []roster.Player) State {
	t.Helper()
	fixedOrder(t)
	s := newTestState(t, testLimits(), teams, players)
	_, s = mustApply(t, s, Command{Type: CmdInitialize})
	return s
}

func TestScenarioA_UncontestedLotSettlesAtBasePrice(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	turn, ok := CurrentTurn(s)
	require.True(t, ok)
	require.Equal(t, "x", turn)

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	assert.Equal(t, PhaseBidding, s.Phase)
	assert.Equal(t, TimerNone, s.Timer.Kind)

	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	require.Equal(t, PhaseSoleBidder, s.Phase)
	require.Equal(t, TimerBid, s.Timer.Kind)
	require.Equal(t, 30, s.Timer.Remaining)

	ticks := 0
	for s.Phase == PhaseSoleBidder {
		_, s = mustApply(t, s, Command{Type: CmdTimerTick, Gen: s.Timer.Gen})
		ticks++
	}
	assert.Equal(t, 30, ticks)
	require.Equal(t, PhaseSettling, s.Phase)

	rec, ok := PendingSale(s)
	require.True(t, ok)
	assert.Equal(t, "bat", rec.PlayerID)
	assert.Equal(t, "x", rec.TeamID)
	assert.Equal(t, "0.5", rec.Price.String())
	assert.False(t, rec.RTMUsed)

	events, s := mustSettle(t, s)
	assert.True(t, ContainsEvent(events, EvtAuctionComplete))
	assert.True(t, ContainsEvent(events, EvtTurnChange))
	assert.Equal(t, "99.5", s.Teams["x"].Budget.String())
	assert.Equal(t, []string{"bat"}, s.Teams["x"].Squad)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Nil(t, s.Lot)

	turn, _ = CurrentTurn(s)
	assert.Equal(t, "z", turn)
}

func TestScenarioB_ContestedLotSettlesToLeader(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	_, s = mustApply(t, s, Command{Type: CmdBid, Team: "z", Amount: money(0.5)})
	assert.Equal(t, "1", s.Lot.Bid.String())
	_, s = mustApply(t, s, Command{Type: CmdBid, Team: "x", Amount: money(0.5)})
	assert.Equal(t, "1.5", s.Lot.Bid.String())
	assert.Equal(t, PhaseBidding, s.Phase)

	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	require.Equal(t, PhaseSoleBidder, s.Phase)

	_, s = runCountdown(t, s)
	require.Equal(t, PhaseSettling, s.Phase)

	_, s = mustSettle(t, s)
	assert.Equal(t, "98.5", s.Teams["x"].Budget.String())
	assert.Equal(t, "100", s.Teams["z"].Budget.String())
	assert.Equal(t, "x", s.Sold["bat"])
}

func TestScenarioC_HomeFranchiseMatchesWinningBid(t *testing.T) {
	s := initialized(t, []string{"x", "y", "z"}, withHome(basePlayers()))

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home"})
	_, s = mustApply(t, s, Command{Type: CmdBid, Team: "z", Amount: money(1.5)})
	_, s = mustApply(t, s, Command{Type: CmdBid, Team: "x", Amount: money(1)})
	assert.Equal(t, "3", s.Lot.Bid.String())

	// y holds the match right and is not counted as a contender.
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	require.Equal(t, PhaseSoleBidder, s.Phase)

	events, s := runCountdown(t, s)
	assert.True(t, ContainsEvent(events, EvtRTMOpportunity))
	require.Equal(t, PhaseRTMDeciding, s.Phase)
	require.Equal(t, TimerRTM, s.Timer.Kind)
	assert.Equal(t, "y", s.Lot.RTMTeam)

	events, s = mustApply(t, s, Command{Type: CmdRTMDecision, Team: "y", Accept: true})
	assert.True(t, ContainsEvent(events, EvtRTMAccepted))
	require.Equal(t, PhaseSettling, s.Phase)
	assert.Equal(t, TimerNone, s.Timer.Kind)

	_, s = mustSettle(t, s)
	assert.Equal(t, "97", s.Teams["y"].Budget.String())
	assert.True(t, s.Teams["y"].RTMUsed)
	assert.Equal(t, []string{"home"}, s.Teams["y"].Squad)
	assert.Equal(t, "100", s.Teams["x"].Budget.String())
	assert.Empty(t, s.Teams["x"].Squad)
	require.Len(t, s.Sales, 1)
	assert.Equal(t, "y", s.Sales[0].TeamID)
	assert.Equal(t, "3", s.Sales[0].Price.String())
	assert.True(t, s.Sales[0].RTMUsed)
}

func TestScenarioD_BidFromFullSquadRejected(t *testing.T) {
	players := append(basePlayers(), fillers(18)...)
	s := initialized(t, []string{"x", "z"}, players)

	var records []SaleRecord
	for _, p := range fillers(18) {
		records = append(records, SaleRecord{PlayerID: p.ID, TeamID: "z", Price: money(0.5)})
	}
	s, err := Replay(s, records)
	require.NoError(t, err)
	require.Len(t, s.Teams["z"].Squad, 18)

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	// z cannot raise, so x is already the sole bidder.
	assert.Equal(t, PhaseSoleBidder, s.Phase)

	before := s.Clone()
	events, after, err := Apply(s, Command{Type: CmdBid, Team: "z", Amount: money(0.5)})
	require.ErrorIs(t, err, ErrSquadFull)
	assert.Nil(t, events)
	assert.Equal(t, before.Lot, after.Lot)
	assert.Equal(t, before.Timer, after.Timer)
	assert.Equal(t, before.Teams["z"].Budget.String(), after.Teams["z"].Budget.String())
}

func TestValidate_NominateRules(t *testing.T) {
	limits := testLimits()
	limits.MaxOverseas = 1
	limits.MaxSquad = 3
	limits.MinPerPosition = map[roster.Position]int{roster.PositionKeeper: 1, roster.PositionBowler: 1}

	players := append(withHome(basePlayers()),
		roster.Player{ID: "os2", Name: "Import II", Position: roster.PositionBatter, BasePrice: money(0.5), Overseas: true},
		roster.Player{ID: "star", Name: "Star", Position: roster.PositionBatter, BasePrice: money(150)},
	)

	cases := []struct {
		name    string
		sales   []SaleRecord
		cmd     Command
		wantErr error
	}{
		{
			name: "legal nomination",
			cmd:  Command{Type: CmdNominate, Team: "x", PlayerID: "bat"},
		},
		{
			name:    "out of turn",
			cmd:     Command{Type: CmdNominate, Team: "z", PlayerID: "bat"},
			wantErr: ErrNotYourTurn,
		},
		{
			name: "admin bypasses turn",
			cmd:  Command{Type: CmdNominate, Team: "z", PlayerID: "bat", Admin: true},
		},
		{
			name:    "admin does not bypass budget",
			cmd:     Command{Type: CmdNominate, Team: "z", PlayerID: "star", Admin: true},
			wantErr: ErrInsufficientBudget,
		},
		{
			name:    "unknown player",
			cmd:     Command{Type: CmdNominate, Team: "x", PlayerID: "ghost"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "player already sold",
			sales:   []SaleRecord{{PlayerID: "bat", TeamID: "z", Price: money(1)}},
			cmd:     Command{Type: CmdNominate, Team: "x", PlayerID: "bat"},
			wantErr: ErrPreconditionFailed,
		},
		{
			name:    "overseas quota",
			sales:   []SaleRecord{{PlayerID: "os", TeamID: "x", Price: money(1)}},
			cmd:     Command{Type: CmdNominate, Team: "x", PlayerID: "os2"},
			wantErr: ErrOverseasQuotaExceeded,
		},
		{
			// Two slots left, two unmet minimums: only keeper or bowler allowed.
			name:    "position restricted",
			sales:   []SaleRecord{{PlayerID: "bat", TeamID: "x", Price: money(1)}},
			cmd:     Command{Type: CmdNominate, Team: "x", PlayerID: "home"},
			wantErr: ErrPositionRestricted,
		},
		{
			name:  "restricted position allowed",
			sales: []SaleRecord{{PlayerID: "bat", TeamID: "x", Price: money(1)}},
			cmd:   Command{Type: CmdNominate, Team: "x", PlayerID: "keep"},
		},
		{
			name: "squad full",
			sales: []SaleRecord{
				{PlayerID: "bat", TeamID: "x", Price: money(1)},
				{PlayerID: "keep", TeamID: "x", Price: money(1)},
				{PlayerID: "bowl", TeamID: "x", Price: money(1)},
			},
			cmd:     Command{Type: CmdNominate, Team: "x", PlayerID: "home", Admin: true},
			wantErr: ErrSquadFull,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fixedOrder(t)
			s := newTestState(t, limits, []string{"x", "y", "z"}, players)
			_, s = mustApply(t, s, Command{Type: CmdInitialize})
			s, err := Replay(s, tc.sales)
			require.NoError(t, err)

			err = Validate(s, tc.cmd)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidate_NominateWhileActive(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})

	err := Validate(s, Command{Type: CmdNominate, Team: "x", PlayerID: "bowl", Admin: true})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	_, _, err = Apply(s, Command{Type: CmdInitialize})
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestValidate_NominateBeforeInitialize(t *testing.T) {
	s := newTestState(t, testLimits(), []string{"x", "z"}, basePlayers())
	err := Validate(s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	// The admin identity can open a lot without an order.
	require.NoError(t, Validate(s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat", Admin: true}))
}

func TestBid_Rules(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})

	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"leader cannot raise itself", Command{Type: CmdBid, Team: "x", Amount: money(0.5)}, ErrPreconditionFailed},
		{"zero increment", Command{Type: CmdBid, Team: "z", Amount: decimal.Zero}, ErrInvalidRequest},
		{"below minimum increment", Command{Type: CmdBid, Team: "z", Amount: money(0.25)}, ErrInvalidRequest},
		{"sub-cent increment", Command{Type: CmdBid, Team: "z", Amount: decimal.RequireFromString("0.505")}, ErrInvalidRequest},
		{"trailing zeros are fine", Command{Type: CmdBid, Team: "z", Amount: decimal.RequireFromString("0.500")}, nil},
		{"over budget", Command{Type: CmdBid, Team: "z", Amount: money(100)}, ErrInsufficientBudget},
		{"unknown team", Command{Type: CmdBid, Team: "q", Amount: money(0.5)}, ErrInvalidRequest},
		{"exactly whole budget", Command{Type: CmdBid, Team: "z", Amount: money(99.5)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(s, tc.cmd)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestBid_StrictlyIncreasingWithinBudget(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})

	teams := []string{"z", "x"}
	last := s.Lot.Bid
	for i := 0; ; i++ {
		team := teams[i%2]
		_, next, err := Apply(s, Command{Type: CmdBid, Team: team, Amount: money(7.5)})
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientBudget)
			break
		}
		require.NoError(t, CheckInvariants(next))
		require.True(t, next.Lot.Bid.GreaterThan(last))
		require.True(t, next.Teams[team].Budget.GreaterThanOrEqual(next.Lot.Bid))
		last = next.Lot.Bid
		s = next
	}
	assert.True(t, last.LessThanOrEqual(money(100)))
}

func TestBid_OverseasQuota(t *testing.T) {
	players := append(basePlayers(), roster.Player{ID: "os2", Name: "Import II", Position: roster.PositionBowler, BasePrice: money(0.5), Overseas: true})
	limits := testLimits()
	limits.MaxOverseas = 1

	fixedOrder(t)
	s := newTestState(t, limits, []string{"x", "z"}, players)
	_, s = mustApply(t, s, Command{Type: CmdInitialize})
	s, err := Replay(s, []SaleRecord{{PlayerID: "os", TeamID: "z", Price: money(1)}})
	require.NoError(t, err)

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "os2"})
	assert.Equal(t, PhaseSoleBidder, s.Phase, "z cannot contend for an overseas player")

	_, _, err = Apply(s, Command{Type: CmdBid, Team: "z", Amount: money(0.5)})
	require.ErrorIs(t, err, ErrOverseasQuotaExceeded)
}

func TestMarkOut_Rules(t *testing.T) {
	s := initialized(t, []string{"x", "y", "z"}, basePlayers())

	_, _, err := Apply(s, Command{Type: CmdMarkOut, Team: "z"})
	require.ErrorIs(t, err, ErrPreconditionFailed, "no lot")

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})

	_, _, err = Apply(s, Command{Type: CmdMarkOut, Team: "x"})
	require.ErrorIs(t, err, ErrPreconditionFailed, "leader")

	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	assert.Equal(t, PhaseBidding, s.Phase, "y still contends")

	_, _, err = Apply(s, Command{Type: CmdMarkOut, Team: "z"})
	require.ErrorIs(t, err, ErrPreconditionFailed, "already out")

	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "y"})
	assert.Equal(t, PhaseSoleBidder, s.Phase)
}

func TestMarkedOutTeamRebidReadmitsAndDisarms(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	require.Equal(t, PhaseSoleBidder, s.Phase)
	armedGen := s.Timer.Gen

	_, s = mustApply(t, s, Command{Type: CmdTimerTick, Gen: armedGen})
	require.Equal(t, 29, s.Timer.Remaining)

	_, s = mustApply(t, s, Command{Type: CmdBid, Team: "z", Amount: money(0.5)})
	assert.Equal(t, "z", s.Lot.Leader)
	assert.False(t, s.Lot.Out["z"])
	assert.Equal(t, PhaseBidding, s.Phase)
	assert.Equal(t, TimerNone, s.Timer.Kind)

	// A tick from the disarmed countdown is discarded.
	_, after, err := Apply(s, Command{Type: CmdTimerTick, Gen: armedGen})
	require.ErrorIs(t, err, ErrStaleTimer)
	assert.Equal(t, PhaseBidding, after.Phase)
}

func TestAdminUnmarkOutDisarmsCountdown(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	require.Equal(t, TimerBid, s.Timer.Kind)

	_, _, err := Apply(s, Command{Type: CmdUnmarkOut, Team: "z"})
	require.ErrorIs(t, err, ErrInvalidRequest, "admin only")

	_, s = mustApply(t, s, Command{Type: CmdUnmarkOut, Team: "z", Admin: true})
	assert.Equal(t, PhaseBidding, s.Phase)
	assert.Equal(t, TimerNone, s.Timer.Kind)

	_, _, err = Apply(s, Command{Type: CmdUnmarkOut, Team: "z", Admin: true})
	require.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestTimers_NeverBothActive(t *testing.T) {
	s := initialized(t, []string{"x", "y", "z"}, withHome(basePlayers()))
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	bidGen := s.Timer.Gen

	_, s = runCountdown(t, s)
	require.Equal(t, TimerRTM, s.Timer.Kind)
	assert.Greater(t, s.Timer.Gen, bidGen)

	_, _, err := Apply(s, Command{Type: CmdTimerTick, Gen: bidGen})
	require.ErrorIs(t, err, ErrStaleTimer)

	_, _, err = Apply(s, Command{Type: CmdBid, Team: "z", Amount: money(0.5)})
	require.ErrorIs(t, err, ErrPreconditionFailed, "no bids while the match right is pending")
}

func TestRTM_DeclineAndExpiry(t *testing.T) {
	setup := func(t *testing.T) State {
		s := initialized(t, []string{"x", "y", "z"}, withHome(basePlayers()))
		_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home"})
		_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
		_, s = runCountdown(t, s)
		require.Equal(t, PhaseRTMDeciding, s.Phase)
		return s
	}

	t.Run("wrong team", func(t *testing.T) {
		s := setup(t)
		_, _, err := Apply(s, Command{Type: CmdRTMDecision, Team: "z", Accept: true})
		require.ErrorIs(t, err, ErrRTMIneligible)
	})

	t.Run("explicit decline", func(t *testing.T) {
		s := setup(t)
		events, s := mustApply(t, s, Command{Type: CmdRTMDecision, Team: "y", Accept: false})
		assert.True(t, ContainsEvent(events, EvtRTMDeclined))
		_, s = mustSettle(t, s)
		assert.Equal(t, "x", s.Sold["home"])
		assert.False(t, s.Teams["y"].RTMUsed)
	})

	t.Run("countdown expiry declines", func(t *testing.T) {
		s := setup(t)
		events, s := runCountdown(t, s)
		assert.True(t, ContainsEvent(events, EvtRTMTimerTick))
		assert.True(t, ContainsEvent(events, EvtRTMDeclined))
		require.Equal(t, PhaseSettling, s.Phase)
		_, s = mustSettle(t, s)
		assert.Equal(t, "x", s.Sold["home"])
	})
}

func TestRTM_UsableOncePerTeam(t *testing.T) {
	s := initialized(t, []string{"x", "y", "z"}, withHome(basePlayers()))

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	_, s = runCountdown(t, s)
	_, s = mustApply(t, s, Command{Type: CmdRTMDecision, Team: "y", Accept: true})
	_, s = mustSettle(t, s)
	require.True(t, s.Teams["y"].RTMUsed)

	// Second home player: y has no right left and now counts as a contender.
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home2", Admin: true})
	assert.Equal(t, PhaseBidding, s.Phase)
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "y"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})

	events, s := runCountdown(t, s)
	assert.False(t, ContainsEvent(events, EvtRTMOpportunity))
	require.Equal(t, PhaseSettling, s.Phase)

	_, _, err := Settle(State{Phase: PhaseIdle})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = Replay(NewState(s.Catalog, s.Rules), []SaleRecord{
		{PlayerID: "home", TeamID: "y", Price: money(1), RTMUsed: true},
		{PlayerID: "home2", TeamID: "y", Price: money(1), RTMUsed: true},
	})
	require.ErrorIs(t, err, ErrRTMIneligible)
}

func TestRTM_NotOfferedWhenFranchiseMarkedOutOrBroke(t *testing.T) {
	t.Run("marked out", func(t *testing.T) {
		s := initialized(t, []string{"x", "y", "z"}, withHome(basePlayers()))
		_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home"})
		_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "y"})
		_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
		events, s := runCountdown(t, s)
		assert.False(t, ContainsEvent(events, EvtRTMOpportunity))
		assert.Equal(t, PhaseSettling, s.Phase)
	})

	t.Run("cannot cover bid", func(t *testing.T) {
		players := append(withHome(basePlayers()), roster.Player{ID: "big", Name: "Big", Position: roster.PositionBatter, BasePrice: money(99)})
		s := initialized(t, []string{"x", "y", "z"}, players)
		s, err := Replay(s, []SaleRecord{{PlayerID: "big", TeamID: "y", Price: money(99)}})
		require.NoError(t, err)

		_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home"})
		_, s = mustApply(t, s, Command{Type: CmdBid, Team: "z", Amount: money(1)})
		_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "x"})
		require.Equal(t, PhaseSoleBidder, s.Phase)
		events, s := runCountdown(t, s)
		assert.False(t, ContainsEvent(events, EvtRTMOpportunity))
		assert.Equal(t, "z", s.Lot.Resolution.Winner)
	})
}

func TestAdvance_SkipsIneligibleTeams(t *testing.T) {
	players := append(basePlayers(), roster.Player{ID: "big", Name: "Big", Position: roster.PositionBatter, BasePrice: money(99.75)})
	s := initialized(t, []string{"x", "y", "z"}, players)

	// y spends down below the minimum viable bid.
	s, err := Replay(s, []SaleRecord{{PlayerID: "big", TeamID: "y", Price: money(99.75)}})
	require.NoError(t, err)

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	_, s = runCountdown(t, s)
	events, s := mustSettle(t, s)

	turn, _ := CurrentTurn(s)
	assert.Equal(t, "z", turn, "y is skipped")
	assert.True(t, ContainsEvent(events, EvtTurnChange))
}

func TestAdvance_VisitsEveryEligibleTeam(t *testing.T) {
	players := append(basePlayers(), fillers(6)...)
	s := initialized(t, []string{"a", "b", "c"}, players)

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		turn, ok := CurrentTurn(s)
		require.True(t, ok)
		seen[turn]++
		_, s = mustApply(t, s, Command{Type: CmdNominate, Team: turn, PlayerID: fmt.Sprintf("f%02d", i)})
		_, s = mustApply(t, s, Command{Type: CmdCompleteLot, Team: turn, Amount: money(0.5), Admin: true})
		_, s = mustSettle(t, s)
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 2, "c": 2}, seen)
}

func TestAdvance_RoundCompleteWhenNobodyEligible(t *testing.T) {
	limits := testLimits()
	limits.MaxSquad = 1
	s := newTestState(t, limits, []string{"x", "z"}, basePlayers())
	fixedOrder(t)
	_, s = mustApply(t, s, Command{Type: CmdInitialize})

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	_, s = runCountdown(t, s)
	_, s = mustSettle(t, s)

	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "z", PlayerID: "bowl"})
	assert.Equal(t, PhaseSoleBidder, s.Phase, "x has a full squad")
	_, s = runCountdown(t, s)
	events, s := mustSettle(t, s)

	assert.True(t, ContainsEvent(events, EvtRoundComplete))
	assert.Equal(t, PhaseRoundComplete, s.Phase)
	_, ok := CurrentTurn(s)
	assert.False(t, ok)

	_, _, err := Apply(s, Command{Type: CmdNominate, Team: "x", PlayerID: "keep", Admin: true})
	require.ErrorIs(t, err, ErrPreconditionFailed)
	_, _, err = Apply(s, Command{Type: CmdInitialize})
	require.ErrorIs(t, err, ErrPreconditionFailed, "no eligible team left")
}

func TestAdminCompleteAndResetLot(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})

	_, _, err := Apply(s, Command{Type: CmdCompleteLot, Team: "z", Amount: money(5)})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, _, err = Apply(s, Command{Type: CmdCompleteLot, Team: "z", Amount: money(500), Admin: true})
	require.ErrorIs(t, err, ErrInsufficientBudget)
	_, _, err = Apply(s, Command{Type: CmdCompleteLot, Team: "z", Amount: decimal.RequireFromString("1.005"), Admin: true})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, reset := mustApply(t, s, Command{Type: CmdResetLot, Admin: true})
	assert.Equal(t, PhaseIdle, reset.Phase)
	assert.Nil(t, reset.Lot)
	turn, _ := CurrentTurn(reset)
	assert.Equal(t, "x", turn, "turn is kept after a lot reset")

	_, s = mustApply(t, s, Command{Type: CmdCompleteLot, Team: "z", Amount: money(5), Admin: true})
	require.Equal(t, PhaseSettling, s.Phase)
	_, s = mustSettle(t, s)
	assert.Equal(t, "95", s.Teams["z"].Budget.String())
}

func TestFullReset_RestoresInitialState(t *testing.T) {
	s := initialized(t, []string{"x", "y", "z"}, withHome(basePlayers()))
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "home"})
	_, s = mustApply(t, s, Command{Type: CmdMarkOut, Team: "z"})
	_, s = runCountdown(t, s)
	_, s = mustApply(t, s, Command{Type: CmdRTMDecision, Team: "y", Accept: true})
	_, s = mustSettle(t, s)
	_, s = mustApply(t, s, Command{Type: CmdNominate, Team: "y", PlayerID: "bat", Admin: true})
	gen := s.Timer.Gen

	_, _, err := Apply(s, Command{Type: CmdFullReset})
	require.ErrorIs(t, err, ErrInvalidRequest)

	events, s := mustApply(t, s, Command{Type: CmdFullReset, Admin: true})
	assert.True(t, ContainsEvent(events, EvtFullReset))
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Nil(t, s.Lot)
	assert.Empty(t, s.Order)
	assert.Empty(t, s.Sales)
	assert.Empty(t, s.Sold)
	assert.Greater(t, s.Timer.Gen, gen)
	for _, team := range s.Teams {
		assert.Equal(t, "100", team.Budget.String())
		assert.False(t, team.RTMUsed)
		assert.Empty(t, team.Squad)
	}
}

func TestApply_DoesNotAliasPreviousState(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	_, s1 := mustApply(t, s, Command{Type: CmdNominate, Team: "x", PlayerID: "bat"})
	_, s2 := mustApply(t, s1, Command{Type: CmdMarkOut, Team: "z"})

	assert.False(t, s1.Lot.Out["z"])
	assert.True(t, s2.Lot.Out["z"])
	assert.Nil(t, s.Lot)
}

func TestCheckInvariants_DetectsBudgetDrift(t *testing.T) {
	s := initialized(t, []string{"x", "z"}, basePlayers())
	s.Teams["x"].Budget = money(90)
	require.Error(t, CheckInvariants(s))
}
