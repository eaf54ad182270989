package types

const (
	MsgSnapshot = "snapshot"
	MsgEvent    = "event"
	MsgError    = "error"
)

// ServerMessage is the envelope for everything pushed over the websocket.
// Snapshot and event messages carry State; error messages carry Code and
// Error and go only to the client that caused them.
type ServerMessage struct {
	Type    string    `json:"type"`
	Event   *Event    `json:"event,omitempty"`
	Version int       `json:"version,omitempty"`
	State   *Snapshot `json:"state,omitempty"`
	Code    string    `json:"code,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Event tags a broadcast with the transition that caused it.
type Event struct {
	Type     string `json:"type"`
	Team     string `json:"team,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Amount   string `json:"amount,omitempty"`
	RTM      bool   `json:"rtm,omitempty"`
}
