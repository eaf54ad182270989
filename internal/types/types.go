package types

import "github.com/shopspring/decimal"

// ClientMessage is what a websocket client sends to act on the auction.
type ClientMessage struct {
	Type      string          `json:"type"` // "nominate" | "bid" | "mark_out" | "rtm"
	TeamID    string          `json:"team_id"`
	PlayerID  string          `json:"player_id,omitempty"`
	Increment decimal.Decimal `json:"increment"`
	Accept    bool            `json:"accept,omitempty"`
}
