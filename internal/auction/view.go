package auction

import (
	"sort"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/pkg/types"
)

// Snapshot renders s for clients.
func Snapshot(s engine.State, version int, settleFailed bool) types.Snapshot {
	snap := types.Snapshot{
		Version:       version,
		Phase:         string(s.Phase),
		AuctionActive: s.Phase.Active(),
		Order:         append([]string{}, s.Order...),
		RoundComplete: s.Phase == engine.PhaseRoundComplete,
		SettleFailed:  settleFailed,
	}
	if team, ok := engine.CurrentTurn(s); ok {
		snap.TurnTeam = team
	}

	switch s.Timer.Kind {
	case engine.TimerBid:
		snap.Timer = types.Countdown{Active: true, Remaining: s.Timer.Remaining}
	case engine.TimerRTM:
		snap.RTMTimer = types.Countdown{Active: true, Remaining: s.Timer.Remaining}
	}

	if lot := s.Lot; lot != nil {
		player, _ := s.Catalog.Player(lot.PlayerID)
		out := make([]string, 0, len(lot.Out))
		for id, isOut := range lot.Out {
			if isOut {
				out = append(out, id)
			}
		}
		sort.Strings(out)
		snap.Lot = &types.Lot{
			PlayerID:   player.ID,
			PlayerName: player.Name,
			Position:   string(player.Position),
			Overseas:   player.Overseas,
			BasePrice:  player.BasePrice.StringFixed(2),
			CurrentBid: lot.Bid.StringFixed(2),
			Leader:     lot.Leader,
			OutTeams:   out,
		}
		if lot.RTMTeam != "" {
			snap.RTM = types.RTM{
				Active:        s.Phase == engine.PhaseRTMDeciding,
				Team:          lot.RTMTeam,
				PendingWinner: lot.Leader,
				PendingPrice:  lot.Bid.StringFixed(2),
			}
		}
	}

	for _, id := range s.Catalog.TeamIDs() {
		t, _ := s.Catalog.Team(id)
		ts := s.Teams[id]
		overseas := 0
		for _, pid := range ts.Squad {
			if p, ok := s.Catalog.Player(pid); ok && p.Overseas {
				overseas++
			}
		}
		snap.Teams = append(snap.Teams, types.Team{
			ID:       id,
			Name:     t.Name,
			Budget:   ts.Budget.StringFixed(2),
			RTMUsed:  ts.RTMUsed,
			Squad:    append([]string{}, ts.Squad...),
			Overseas: overseas,
		})
	}
	return snap
}

// Players lists the catalog with each player's buyer.
func Players(s engine.State) []types.Player {
	all := s.Catalog.Players()
	out := make([]types.Player, 0, len(all))
	for _, p := range all {
		out = append(out, types.Player{
			ID:        p.ID,
			Name:      p.Name,
			Position:  string(p.Position),
			BasePrice: p.BasePrice.StringFixed(2),
			HomeTeam:  p.HomeTeam,
			Overseas:  p.Overseas,
			SoldTo:    s.Sold[p.ID],
		})
	}
	return out
}

// EventDTO converts an engine event to its wire tag.
func EventDTO(e engine.Event) *types.Event {
	dto := &types.Event{Type: string(e.Type), Team: e.Team, PlayerID: e.PlayerID, RTM: e.RTM}
	if !e.Amount.IsZero() {
		dto.Amount = e.Amount.StringFixed(2)
	}
	return dto
}
