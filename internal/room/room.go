// internal/room/room.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agraham02/family-games/internal/models"
)

// State is the room lifecycle phase. Transitions only move forward:
// Lobby -> InGame -> Ended. Pausing is an orthogonal flag on InGame.
type State string

const (
	StateLobby  State = "lobby"
	StateInGame State = "in_game"
	StateEnded  State = "ended"
)

// Settings are the room-level knobs the leader controls.
type Settings struct {
	MaxPlayers          int  `json:"maxPlayers"`
	PauseTimeoutSeconds int  `json:"pauseTimeoutSeconds"`
	IsPrivate           bool `json:"isPrivate"`
}

const (
	DefaultMaxPlayers   = 8
	DefaultPauseTimeout = 120
	MinPauseTimeout     = 30
	MaxPauseTimeout     = 600
)

// Room is the authoritative state for one lobby/game container. All
// mutations happen under Mu; methods with the Unsafe suffix assume the
// caller holds it. Each room is an independent single-threaded actor: one
// action runs to completion (engine call and broadcast included) before the
// next is accepted.
type Room struct {
	ID               uuid.UUID
	Code             string // 6 chars, [A-Z0-9], stored upper-cased
	Name             string
	Users            []*models.User // join order; index 0 joined first
	LeaderID         uuid.UUID
	ReadyStates      map[uuid.UUID]bool
	State            State
	SelectedGameType string
	Teams            [][]uuid.UUID // uuid.Nil marks an empty slot
	Settings         Settings
	// GameSettings persists per-game-type settings across replays in the
	// same room.
	GameSettings map[string]map[string]interface{}

	IsPaused  bool
	PausedAt  time.Time
	TimeoutAt time.Time

	Spectators map[uuid.UUID]bool
	Kicked     map[uuid.UUID]bool

	CreatedAt  time.Time
	EmptySince time.Time // zero while the room has members

	// BroadcastFn sends a message to every connected member. Nil until the
	// transport attaches one.
	BroadcastFn func(msg map[string]interface{})
	// BroadcastToUserFn sends a message to one member.
	BroadcastToUserFn func(userID uuid.UUID, msg map[string]interface{})

	// OnEmpty is invoked after the last member leaves, typically wired to
	// schedule deletion from the store.
	OnEmpty func(roomID uuid.UUID)

	Mu sync.Mutex
}

func newRoom(name, code string) *Room {
	id, _ := uuid.NewRandom()
	return &Room{
		ID:           id,
		Code:         code,
		Name:         name,
		State:        StateLobby,
		ReadyStates:  make(map[uuid.UUID]bool),
		GameSettings: make(map[string]map[string]interface{}),
		Spectators:   make(map[uuid.UUID]bool),
		Kicked:       make(map[uuid.UUID]bool),
		Settings: Settings{
			MaxPlayers:          DefaultMaxPlayers,
			PauseTimeoutSeconds: DefaultPauseTimeout,
		},
		CreatedAt: time.Now(),
	}
}

// MemberUnsafe returns the member with the given id, or nil.
func (r *Room) MemberUnsafe(userID uuid.UUID) *models.User {
	for _, u := range r.Users {
		if u.ID == userID {
			return u
		}
	}
	return nil
}

// addUserUnsafe appends a new member and makes them leader if the room had
// none.
func (r *Room) addUserUnsafe(u *models.User) {
	r.Users = append(r.Users, u)
	r.ReadyStates[u.ID] = false
	r.EmptySince = time.Time{}
	if r.LeaderID == uuid.Nil {
		r.LeaderID = u.ID
	}
}

// removeUserUnsafe removes a member, clears their team slot and ready state,
// and transfers leadership to the oldest remaining member. Returns true if
// the room is now empty.
func (r *Room) removeUserUnsafe(userID uuid.UUID) bool {
	idx := -1
	for i, u := range r.Users {
		if u.ID == userID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return len(r.Users) == 0
	}
	r.Users = append(r.Users[:idx], r.Users[idx+1:]...)
	delete(r.ReadyStates, userID)
	delete(r.Spectators, userID)
	r.clearTeamSlotUnsafe(userID)

	if r.LeaderID == userID {
		if len(r.Users) > 0 {
			// Deterministic transfer: oldest remaining member by join order.
			r.LeaderID = r.Users[0].ID
		} else {
			r.LeaderID = uuid.Nil
		}
	}

	if len(r.Users) == 0 {
		r.EmptySince = time.Now()
		return true
	}
	return false
}

func (r *Room) clearTeamSlotUnsafe(userID uuid.UUID) {
	for ti := range r.Teams {
		for si := range r.Teams[ti] {
			if r.Teams[ti][si] == userID {
				r.Teams[ti][si] = uuid.Nil
			}
		}
	}
}

// ActivePlayersUnsafe lists member ids excluding spectators, in join order.
func (r *Room) ActivePlayersUnsafe() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Users))
	for _, u := range r.Users {
		if !r.Spectators[u.ID] {
			out = append(out, u.ID)
		}
	}
	return out
}

// DisconnectedPlayersUnsafe lists active players whose connection is down.
func (r *Room) DisconnectedPlayersUnsafe() []uuid.UUID {
	var out []uuid.UUID
	for _, u := range r.Users {
		if !u.Connected && !r.Spectators[u.ID] {
			out = append(out, u.ID)
		}
	}
	return out
}

// AllReadyUnsafe reports whether every non-spectator member is ready.
func (r *Room) AllReadyUnsafe() bool {
	if len(r.Users) == 0 {
		return false
	}
	for _, u := range r.Users {
		if r.Spectators[u.ID] {
			continue
		}
		if !r.ReadyStates[u.ID] {
			return false
		}
	}
	return true
}

// BroadcastAllUnsafe fans a message out to all connected members.
func (r *Room) BroadcastAllUnsafe(msg map[string]interface{}) {
	if r.BroadcastFn != nil {
		r.BroadcastFn(msg)
	}
}

// BroadcastToUserUnsafe sends a message to one member.
func (r *Room) BroadcastToUserUnsafe(userID uuid.UUID, msg map[string]interface{}) {
	if r.BroadcastToUserFn != nil {
		r.BroadcastToUserFn(userID, msg)
	}
}

// SnapshotUnsafe builds the room state payload clients render from. Game
// session state is appended by the orchestrator when one is active.
func (r *Room) SnapshotUnsafe() map[string]interface{} {
	users := make([]map[string]interface{}, 0, len(r.Users))
	for _, u := range r.Users {
		users = append(users, map[string]interface{}{
			"id":          u.ID.String(),
			"name":        u.Name,
			"connected":   u.Connected,
			"isLeader":    u.ID == r.LeaderID,
			"isReady":     r.ReadyStates[u.ID],
			"isSpectator": r.Spectators[u.ID],
		})
	}
	snap := map[string]interface{}{
		"id":               r.ID.String(),
		"code":             r.Code,
		"name":             r.Name,
		"state":            string(r.State),
		"users":            users,
		"leaderId":         r.LeaderID.String(),
		"selectedGameType": r.SelectedGameType,
		"teams":            r.Teams,
		"settings":         r.Settings,
		"isPaused":         r.IsPaused,
	}
	if r.IsPaused {
		snap["pausedAt"] = r.PausedAt.Unix()
		snap["timeoutAt"] = r.TimeoutAt.Unix()
	}
	return snap
}

// BroadcastRoomStateUnsafe pushes a fresh snapshot to everyone.
func (r *Room) BroadcastRoomStateUnsafe() {
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type": "room_state",
		"room": r.SnapshotUnsafe(),
	})
}
