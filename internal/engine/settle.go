package engine

import (
	"fmt"
)

// PendingSale returns the record settlement must persist, if a lot is resolved.
func PendingSale(s State) (SaleRecord, bool) {
	if s.Phase != PhaseSettling || s.Lot == nil || s.Lot.Resolution == nil {
		return SaleRecord{}, false
	}
	r := s.Lot.Resolution
	return SaleRecord{
		PlayerID: s.Lot.PlayerID,
		TeamID:   r.Winner,
		Price:    r.Price,
		RTMUsed:  r.RTMUsed,
	}, true
}

// Settle finalizes a resolved lot once its record has been persisted: debit
// the winner, flip its match right if used, clear the lot and pass the turn.
func Settle(s State) ([]Event, State, error) {
	rec, ok := PendingSale(s)
	if !ok {
		return nil, s, reject(CodePreconditionFailed, "no resolved lot to settle")
	}

	next := s.Clone()
	if err := next.recordSale(rec); err != nil {
		return nil, s, err
	}
	next.Lot = nil
	next.Phase = PhaseIdle
	next.disarm()

	events := []Event{{Type: EvtAuctionComplete, Team: rec.TeamID, PlayerID: rec.PlayerID, Amount: rec.Price, RTM: rec.RTMUsed}}
	events = append(events, next.advance()...)
	return events, next, nil
}

func (s *State) recordSale(rec SaleRecord) error {
	t, ok := s.Teams[rec.TeamID]
	if !ok {
		return reject(CodeInvalidRequest, "unknown team %q", rec.TeamID)
	}
	if _, ok := s.Catalog.Player(rec.PlayerID); !ok {
		return reject(CodeInvalidRequest, "unknown player %q", rec.PlayerID)
	}
	if owner, sold := s.Sold[rec.PlayerID]; sold {
		return reject(CodePreconditionFailed, "player %s already sold to %s", rec.PlayerID, owner)
	}
	if t.Budget.LessThan(rec.Price) {
		return reject(CodeInsufficientBudget, "%s cannot pay %s from %s", t.ID, rec.Price, t.Budget)
	}
	if rec.RTMUsed && t.RTMUsed {
		return reject(CodeRTMIneligible, "%s already used its match right", t.ID)
	}

	t.Budget = t.Budget.Sub(rec.Price)
	t.Squad = append(t.Squad, rec.PlayerID)
	if rec.RTMUsed {
		t.RTMUsed = true
	}
	s.Sold[rec.PlayerID] = t.ID
	s.Sales = append(s.Sales, rec)
	return nil
}

// Replay rebuilds budgets, squads and match-right flags from persisted sales.
func Replay(s State, records []SaleRecord) (State, error) {
	next := s.Clone()
	for i, rec := range records {
		if err := next.recordSale(rec); err != nil {
			return s, fmt.Errorf("replay sale %d (%s): %w", i, rec.PlayerID, err)
		}
	}
	return next, nil
}
