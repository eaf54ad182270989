package engine

import "math/rand/v2"

// shuffleTeams permutes the nomination order in place. Tests replace it to get
// a deterministic order.
var shuffleTeams = func(ids []string) {
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// CurrentTurn returns the team holding the nomination turn.
func CurrentTurn(s State) (string, bool) {
	if s.Turn < 0 || s.Turn >= len(s.Order) {
		return "", false
	}
	return s.Order[s.Turn], true
}

// canNominate reports whether a team could open a lot: squad not full and
// budget at or above the minimum viable bid.
func (s *State) canNominate(teamID string) bool {
	t, ok := s.Teams[teamID]
	if !ok {
		return false
	}
	if len(t.Squad) >= s.Catalog.Limits.MaxSquad {
		return false
	}
	return t.Budget.GreaterThanOrEqual(s.Catalog.Limits.MinViableBid)
}

func (s *State) anyUnsold() bool {
	for _, p := range s.Catalog.Players() {
		if _, sold := s.Sold[p.ID]; !sold {
			return true
		}
	}
	return false
}

// advance walks the order from the slot after the current turn and stops at
// the first team eligible to nominate. A full cycle with no eligible team, or
// an exhausted player pool, ends the round.
func (s *State) advance() []Event {
	n := len(s.Order)
	if n == 0 {
		s.Turn = -1
		return nil
	}
	if s.anyUnsold() {
		start := s.Turn + 1
		for i := 0; i < n; i++ {
			idx := (start + i) % n
			if s.canNominate(s.Order[idx]) {
				s.Turn = idx
				return []Event{{Type: EvtTurnChange, Team: s.Order[idx]}}
			}
		}
	}
	s.Turn = -1
	s.Phase = PhaseRoundComplete
	return []Event{{Type: EvtRoundComplete}}
}
