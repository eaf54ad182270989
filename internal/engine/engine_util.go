package engine

import (
	"github.com/DoyleJ11/auction-backend/internal/roster"
)

// NewState returns the initial state for a catalog: full budgets, empty
// squads, no nomination order.
func NewState(c *roster.Catalog, rules Rules) State {
	s := State{
		Phase:   PhaseIdle,
		Teams:   make(map[string]*TeamState, len(c.TeamIDs())),
		Sold:    map[string]string{},
		Turn:    -1,
		Rules:   rules,
		Catalog: c,
	}
	for _, id := range c.TeamIDs() {
		s.Teams[id] = &TeamState{ID: id, Budget: c.Limits.InitialBudget, Squad: []string{}}
	}
	return s
}

// Clone deep-copies every mutable part of the state. The catalog is shared.
func (s State) Clone() State {
	c := s
	if s.Lot != nil {
		lot := *s.Lot
		lot.Out = make(map[string]bool, len(s.Lot.Out))
		for k, v := range s.Lot.Out {
			lot.Out[k] = v
		}
		if s.Lot.Resolution != nil {
			r := *s.Lot.Resolution
			lot.Resolution = &r
		}
		c.Lot = &lot
	}
	c.Teams = make(map[string]*TeamState, len(s.Teams))
	for id, t := range s.Teams {
		cp := *t
		cp.Squad = append([]string(nil), t.Squad...)
		c.Teams[id] = &cp
	}
	c.Sold = make(map[string]string, len(s.Sold))
	for k, v := range s.Sold {
		c.Sold[k] = v
	}
	c.Sales = append([]SaleRecord(nil), s.Sales...)
	c.Order = append([]string(nil), s.Order...)
	return c
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
