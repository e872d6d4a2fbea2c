// internal/games/module.go
package games

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agraham02/family-games/internal/models"
)

// TeamRequirement declares the fixed team shape a game needs, if any.
type TeamRequirement struct {
	NumTeams       int `json:"numTeams"`
	PlayersPerTeam int `json:"playersPerTeam"`
}

// Metadata describes a game type for listings and lobby validation.
type Metadata struct {
	Type        string           `json:"type"`
	DisplayName string           `json:"displayName"`
	Description string           `json:"description"`
	MinPlayers  int              `json:"minPlayers"`
	MaxPlayers  int              `json:"maxPlayers"`
	Teams       *TeamRequirement `json:"teams,omitempty"`
	Enabled     bool             `json:"enabled"`
	ComingSoon  bool             `json:"comingSoon"`
}

// Envelope is the only part of a session the orchestrator may inspect.
type Envelope struct {
	Phase            string      `json:"phase"`
	PlayOrder        []uuid.UUID `json:"playOrder"`
	CurrentTurnIndex int         `json:"currentTurnIndex"`
}

// Session is the opaque, game-specific state of one in-progress game. It is
// owned exclusively by the rule engine that produced it.
type Session interface {
	Envelope() Envelope

	// Snapshot produces a client-renderable view of the session for the
	// given viewer. Hidden information (other players' hands) is omitted.
	Snapshot(viewer uuid.UUID) map[string]interface{}
}

// Event is a broadcastable game event produced by an engine step.
type Event struct {
	Type string `json:"type"`
	// To restricts delivery to a single player; uuid.Nil means everyone.
	To      uuid.UUID              `json:"-"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// StepResult reports the outcome of one successfully applied action.
// The orchestrator detects round and game completion only through the
// booleans here, never by reaching into session internals.
type StepResult struct {
	Events    []Event
	RoundOver bool
	GameOver  bool
}

// TeamScore is one team's standing after scoring.
type TeamScore struct {
	TeamIndex int         `json:"teamIndex"`
	Players   []uuid.UUID `json:"players"`
	Score     int         `json:"score"`
	Bags      int         `json:"bags"`
}

// ScoreReport carries round and cumulative scores out of an engine.
type ScoreReport struct {
	Teams        []TeamScore       `json:"teams,omitempty"`
	PlayerScores map[uuid.UUID]int `json:"playerScores,omitempty"`
	// WinnerTeams lists the winning team indexes once the game is over.
	// More than one entry with Tie set means the game ended tied.
	WinnerTeams []int `json:"winnerTeams,omitempty"`
	Tie         bool  `json:"tie"`
}

// Module is the common capability surface every game engine implements.
// Engines are pure: no knowledge of rooms, timers, or networking.
type Module interface {
	Meta() Metadata
	SettingsSchema() (schema map[string]interface{}, defaults map[string]interface{})

	// Initialize builds the first session for a fresh game. teams may be nil
	// for games without team requirements. The shuffler is the only source
	// of randomness an engine may use.
	Initialize(players []uuid.UUID, teams [][]uuid.UUID, settings map[string]interface{}, rng Shuffler) (Session, error)

	// ApplyAction validates and applies one player action. Illegal moves
	// return an *IllegalMoveError and leave the session untouched.
	ApplyAction(s Session, playerID uuid.UUID, action models.GameAction) (*StepResult, error)

	// TurnExempt reports whether the action type may be submitted out of
	// turn in the session's current phase.
	TurnExempt(s Session, actionType string) bool

	// Forfeit removes a player from further play after a pause timeout.
	Forfeit(s Session, playerID uuid.UUID) (*StepResult, error)

	// StartNextRound resets the deal for the next round of the same session.
	StartNextRound(s Session, rng Shuffler) (*StepResult, error)

	ComputeScores(s Session) ScoreReport
}

// IllegalMoveError rejects a specific action with a machine-readable reason.
// It is non-fatal: session state is unchanged and the error never escalates
// to an internal failure.
type IllegalMoveError struct {
	Reason string // e.g. "must_follow_suit", "spades_not_broken"
	Detail string
}

func (e *IllegalMoveError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("illegal move (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("illegal move (%s)", e.Reason)
}

// Illegal builds an IllegalMoveError.
func Illegal(reason, format string, args ...interface{}) *IllegalMoveError {
	return &IllegalMoveError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
