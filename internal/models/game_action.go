package models

// GameAction captures a player's in-game move as it arrives off the wire.
type GameAction struct {
	ActionType string                 `json:"action_type"`
	Payload    map[string]interface{} `json:"payload"`
}
