package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// CheckInvariants verifies the state-wide invariants and returns every
// violation found.
func CheckInvariants(s State) error {
	var err error
	limits := s.Catalog.Limits

	if s.Lot != nil && s.Phase.Active() {
		player, ok := s.Catalog.Player(s.Lot.PlayerID)
		if !ok {
			err = multierr.Append(err, fmt.Errorf("lot player %q not in catalog", s.Lot.PlayerID))
		} else if s.Lot.Bid.LessThan(player.BasePrice) {
			err = multierr.Append(err, fmt.Errorf("bid %s below base price %s", s.Lot.Bid, player.BasePrice))
		}
		if leader, ok := s.Teams[s.Lot.Leader]; ok && s.Phase != PhaseSettling {
			if leader.Budget.LessThan(s.Lot.Bid) {
				err = multierr.Append(err, fmt.Errorf("leader %s cannot cover %s", leader.ID, s.Lot.Bid))
			}
		}
		if s.Lot.Out[s.Lot.Leader] {
			err = multierr.Append(err, fmt.Errorf("leader %s is marked out", s.Lot.Leader))
		}
	}

	want := TimerNone
	switch s.Phase {
	case PhaseSoleBidder:
		want = TimerBid
	case PhaseRTMDeciding:
		want = TimerRTM
	}
	if s.Timer.Kind != want {
		err = multierr.Append(err, fmt.Errorf("phase %s with %q countdown", s.Phase, s.Timer.Kind))
	}

	spent := map[string]decimal.Decimal{}
	for _, rec := range s.Sales {
		spent[rec.TeamID] = spent[rec.TeamID].Add(rec.Price)
	}
	for id, t := range s.Teams {
		if t.Budget.IsNegative() {
			err = multierr.Append(err, fmt.Errorf("%s budget negative: %s", id, t.Budget))
		}
		if total := spent[id].Add(t.Budget); !total.Equal(limits.InitialBudget) {
			err = multierr.Append(err, fmt.Errorf("%s spent+budget %s != initial %s", id, total, limits.InitialBudget))
		}
		if len(t.Squad) > limits.MaxSquad {
			err = multierr.Append(err, fmt.Errorf("%s squad %d exceeds %d", id, len(t.Squad), limits.MaxSquad))
		}
	}
	return err
}
