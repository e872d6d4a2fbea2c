// internal/room/store.go
package room

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agraham02/family-games/internal/apperr"
	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/models"
)

// codeRetryLimit bounds collision retries during code generation. Running
// out is treated as exhausted code space, a fatal capacity condition.
const codeRetryLimit = 64

// EmptyRoomGracePeriod is how long an empty room survives before the
// janitor deletes it, giving a sole member a window to rejoin.
const EmptyRoomGracePeriod = 2 * time.Minute

// Store is the in-memory authoritative table of rooms, keyed by id with a
// case-canonical code index. It is the single source of truth for
// membership, leadership, teams, and pause state.
type Store struct {
	logger *logrus.Logger

	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	byCode map[string]uuid.UUID

	limiter *JoinRequestLimiter
}

func NewStore(logger *logrus.Logger) *Store {
	return &Store{
		logger:  logger,
		rooms:   make(map[uuid.UUID]*Room),
		byCode:  make(map[string]uuid.UUID),
		limiter: NewJoinRequestLimiter(DefaultJoinRequestCooldown),
	}
}

// Limiter exposes the join-request limiter, mainly so tests can Reset it.
func (s *Store) Limiter() *JoinRequestLimiter { return s.limiter }

// CreateRoom makes a new room in Lobby state with the creator as its sole
// member and leader. Fails only on exhausted code space.
func (s *Store) CreateRoom(roomName, leaderName string) (*Room, *models.User, error) {
	leaderName, err := ValidatePlayerName(leaderName)
	if err != nil {
		return nil, nil, err
	}
	roomName = trimRoomName(roomName, leaderName)

	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.uniqueCodeLocked()
	if err != nil {
		return nil, nil, err
	}

	r := newRoom(roomName, code)
	uid, _ := uuid.NewRandom()
	leader := &models.User{ID: uid, Name: leaderName, Connected: true}

	r.Mu.Lock()
	r.addUserUnsafe(leader)
	r.Mu.Unlock()

	r.OnEmpty = func(roomID uuid.UUID) {
		s.logger.WithField("room_id", roomID).Debug("room empty, eligible for cleanup")
	}

	s.rooms[r.ID] = r
	s.byCode[r.Code] = r.ID
	s.logger.WithFields(logrus.Fields{
		"room_id": r.ID,
		"code":    r.Code,
		"leader":  leader.ID,
	}).Info("room created")
	return r, leader, nil
}

func trimRoomName(roomName, leaderName string) string {
	roomName = clampName(roomName)
	if roomName == "" {
		roomName = fmt.Sprintf("%s's Room", leaderName)
	}
	return roomName
}

func clampName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > 60 {
		name = name[:60]
	}
	return name
}

// uniqueCodeLocked generates a code not used by any live room, retrying on
// collision. Assumes s.mu is held.
func (s *Store) uniqueCodeLocked() (string, error) {
	for i := 0; i < codeRetryLimit; i++ {
		code, err := generateCode()
		if err != nil {
			return "", apperr.Internal(err)
		}
		if _, taken := s.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", apperr.Internal(fmt.Errorf("room code space exhausted after %d attempts", codeRetryLimit))
}

// GetRoom returns a room by id.
func (s *Store) GetRoom(id uuid.UUID) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, apperr.NotFound("room %s not found", id)
	}
	return r, nil
}

// GetRoomByCode returns a room by its case-insensitive code.
func (s *Store) GetRoomByCode(code string) (*Room, error) {
	code = NormalizeCode(code)
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, apperr.NotFound("no room with code %s", code)
	}
	return s.rooms[id], nil
}

// JoinRoom adds a player to the room behind the code, or restores an
// existing member's connection when existingUserID matches a seat.
func (s *Store) JoinRoom(code, playerName string, existingUserID uuid.UUID) (*Room, *models.User, error) {
	r, err := s.GetRoomByCode(code)
	if err != nil {
		return nil, nil, err
	}
	playerName, err = ValidatePlayerName(playerName)
	if err != nil {
		return nil, nil, err
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Kicked[existingUserID] {
		return nil, nil, apperr.Forbidden("user was removed from this room")
	}

	// Rejoin path: a known seat flips back to connected instead of creating
	// a fresh user. Works mid-game, which is how reconnection restores play.
	if existingUserID != uuid.Nil {
		if u := r.MemberUnsafe(existingUserID); u != nil {
			u.Connected = true
			s.logger.WithFields(logrus.Fields{
				"room_id": r.ID,
				"user_id": u.ID,
			}).Info("member rejoined")
			r.BroadcastRoomStateUnsafe()
			return r, u, nil
		}
	}

	if r.State == StateEnded {
		return nil, nil, apperr.NotFound("room has ended")
	}
	if r.State == StateInGame {
		// Join-mid-game is unsupported for the currently selected games.
		return nil, nil, apperr.Conflict("game already in progress")
	}
	if len(r.Users) >= r.Settings.MaxPlayers {
		return nil, nil, apperr.Conflict("room is full (%d players max)", r.Settings.MaxPlayers)
	}

	uid, _ := uuid.NewRandom()
	u := &models.User{ID: uid, Name: playerName, Connected: true}
	r.addUserUnsafe(u)
	s.logger.WithFields(logrus.Fields{
		"room_id": r.ID,
		"user_id": u.ID,
		"name":    u.Name,
	}).Info("member joined")
	r.BroadcastRoomStateUnsafe()
	return r, u, nil
}

// RequestToJoin signals the leader of a private room that someone wants in.
// It mutates nothing but the rate-limit counter.
func (s *Store) RequestToJoin(code string, requesterID uuid.UUID, requesterName string) error {
	r, err := s.GetRoomByCode(code)
	if err != nil {
		return err
	}
	requesterName, err = ValidatePlayerName(requesterName)
	if err != nil {
		return err
	}
	if err := s.limiter.Allow(r.ID, requesterID); err != nil {
		return err
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.Kicked[requesterID] {
		return apperr.Forbidden("user was removed from this room")
	}
	r.BroadcastToUserUnsafe(r.LeaderID, map[string]interface{}{
		"type":          "join_request",
		"requesterId":   requesterID.String(),
		"requesterName": requesterName,
	})
	return nil
}

// LeaveRoom removes a member. Leadership transfers deterministically to the
// oldest remaining member; an emptied room is flagged for the janitor.
func (s *Store) LeaveRoom(roomID, userID uuid.UUID) error {
	r, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	if r.MemberUnsafe(userID) == nil {
		r.Mu.Unlock()
		return apperr.NotFound("user %s is not in room %s", userID, roomID)
	}
	empty := r.removeUserUnsafe(userID)
	onEmpty := r.OnEmpty
	if !empty {
		r.BroadcastRoomStateUnsafe()
	}
	r.Mu.Unlock()

	s.logger.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("member left")
	if empty && onEmpty != nil {
		onEmpty(roomID)
	}
	return nil
}

// KickUser permanently bans a member from the room. Leader only. The caller
// (orchestrator) treats an in-game kick like a disconnect for pause
// purposes.
func (s *Store) KickUser(roomID, targetUserID, byUserID uuid.UUID) error {
	r, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.LeaderID != byUserID {
		return apperr.Forbidden("only the leader can kick")
	}
	if targetUserID == byUserID {
		return apperr.BadRequest("leader cannot kick themselves")
	}
	if r.MemberUnsafe(targetUserID) == nil {
		return apperr.NotFound("user %s is not in room %s", targetUserID, roomID)
	}

	r.Kicked[targetUserID] = true
	r.removeUserUnsafe(targetUserID)
	s.logger.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": targetUserID,
		"by":      byUserID,
	}).Info("member kicked")
	r.BroadcastToUserUnsafe(targetUserID, map[string]interface{}{"type": "kicked"})
	r.BroadcastRoomStateUnsafe()
	return nil
}

// AssignTeams validates then commits a team layout. Validation runs fully
// before any mutation, so a rejected assignment is never partially applied.
// Completeness (every slot filled) is only required at game start, not here.
func (s *Store) AssignTeams(roomID uuid.UUID, teams [][]uuid.UUID, req *games.TeamRequirement) error {
	r, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.State != StateLobby {
		return apperr.Conflict("teams can only change in the lobby")
	}
	if err := r.ValidateTeamsUnsafe(teams, req, false); err != nil {
		return err
	}
	r.Teams = teams
	r.BroadcastRoomStateUnsafe()
	return nil
}

// SelectGameType sets the room's game. Leader only, lobby only.
func (s *Store) SelectGameType(roomID, byUserID uuid.UUID, gameType string) error {
	r, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.LeaderID != byUserID {
		return apperr.Forbidden("only the leader can select the game")
	}
	if r.State != StateLobby {
		return apperr.Conflict("game selection is locked once the game starts")
	}
	r.SelectedGameType = gameType
	r.Teams = nil
	r.BroadcastRoomStateUnsafe()
	return nil
}

// UpdateSettings applies room-level settings. Leader only.
func (s *Store) UpdateSettings(roomID, byUserID uuid.UUID, settings Settings) error {
	r, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.LeaderID != byUserID {
		return apperr.Forbidden("only the leader can update settings")
	}
	if settings.MaxPlayers < len(r.Users) {
		return apperr.BadRequest("maxPlayers cannot be below current member count")
	}
	if settings.PauseTimeoutSeconds < MinPauseTimeout || settings.PauseTimeoutSeconds > MaxPauseTimeout {
		return apperr.BadRequest("pauseTimeoutSeconds must be between %d and %d", MinPauseTimeout, MaxPauseTimeout)
	}
	r.Settings = settings
	r.BroadcastRoomStateUnsafe()
	return nil
}

// SetGameSettings stores per-game-type settings; they persist across
// replays of the same game in this room.
func (s *Store) SetGameSettings(roomID, byUserID uuid.UUID, gameType string, settings map[string]interface{}) error {
	r, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.LeaderID != byUserID {
		return apperr.Forbidden("only the leader can update game settings")
	}
	r.GameSettings[gameType] = settings
	r.BroadcastRoomStateUnsafe()
	return nil
}

// SetReady toggles a member's ready flag.
func (s *Store) SetReady(roomID, userID uuid.UUID, ready bool) error {
	r, err := s.GetRoom(roomID)
	if err != nil {
		return err
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.MemberUnsafe(userID) == nil {
		return apperr.NotFound("user %s is not in room %s", userID, roomID)
	}
	r.ReadyStates[userID] = ready
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "ready_update",
		"userId":  userID.String(),
		"isReady": ready,
	})
	return nil
}

// DeleteRoom drops a room and frees its code.
func (s *Store) DeleteRoom(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return
	}
	delete(s.rooms, id)
	delete(s.byCode, r.Code)
	s.logger.WithField("room_id", id).Info("room deleted")
}

// CleanupEmpty deletes rooms that have been empty past the grace period.
// Called periodically by the janitor.
func (s *Store) CleanupEmpty(now time.Time) int {
	s.mu.Lock()
	var stale []uuid.UUID
	for id, r := range s.rooms {
		r.Mu.Lock()
		if len(r.Users) == 0 && !r.EmptySince.IsZero() && now.Sub(r.EmptySince) >= EmptyRoomGracePeriod {
			stale = append(stale, id)
		}
		r.Mu.Unlock()
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.DeleteRoom(id)
	}
	return len(stale)
}

// Rooms returns a snapshot copy of the room table.
func (s *Store) Rooms() map[uuid.UUID]*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]*Room, len(s.rooms))
	for k, v := range s.rooms {
		out[k] = v
	}
	return out
}
