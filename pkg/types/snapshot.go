// Package types holds the JSON shapes sent to clients.
package types

// Snapshot is the full auction state as clients see it. Money is rendered as
// decimal strings.
type Snapshot struct {
	Version       int       `json:"version"`
	Phase         string    `json:"phase"`
	AuctionActive bool      `json:"auction_active"`
	Lot           *Lot      `json:"lot,omitempty"`
	RTM           RTM       `json:"rtm"`
	Timer         Countdown `json:"timer"`
	RTMTimer      Countdown `json:"rtm_timer"`
	Order         []string  `json:"order"`
	TurnTeam      string    `json:"turn_team,omitempty"`
	Teams         []Team    `json:"teams"`
	RoundComplete bool      `json:"round_complete"`
	SettleFailed  bool      `json:"settlement_failed,omitempty"`
}

type Lot struct {
	PlayerID   string   `json:"player_id"`
	PlayerName string   `json:"player_name"`
	Position   string   `json:"position"`
	Overseas   bool     `json:"overseas"`
	BasePrice  string   `json:"base_price"`
	CurrentBid string   `json:"current_bid"`
	Leader     string   `json:"leader"`
	OutTeams   []string `json:"out_teams"`
}

type RTM struct {
	Active        bool   `json:"active"`
	Team          string `json:"team,omitempty"`
	PendingWinner string `json:"pending_winner,omitempty"`
	PendingPrice  string `json:"pending_price,omitempty"`
}

type Countdown struct {
	Active    bool `json:"active"`
	Remaining int  `json:"remaining"`
}

type Team struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Budget   string   `json:"budget"`
	RTMUsed  bool     `json:"rtm_used"`
	Squad    []string `json:"squad"`
	Overseas int      `json:"overseas"`
}

// Player is a catalog entry with its sale, if any.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Position  string `json:"position"`
	BasePrice string `json:"base_price"`
	HomeTeam  string `json:"home_team,omitempty"`
	Overseas  bool   `json:"overseas"`
	SoldTo    string `json:"sold_to,omitempty"`
}
