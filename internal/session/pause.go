// internal/session/pause.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agraham02/family-games/internal/room"
)

// PauseSupervisor tracks disconnected players per room and owns the single
// pause window. Multiple simultaneous disconnects share one window; the
// window clears only when every tracked player is back or the timeout
// fires. Timers carry a sequence number so a stale callback that lost a
// race with a reschedule is ignored.
type PauseSupervisor struct {
	logger *logrus.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]map[uuid.UUID]bool // roomID -> down player ids
	timers  map[uuid.UUID]*time.Timer
	seqs    map[uuid.UUID]int

	now       func() time.Time
	onTimeout func(roomID uuid.UUID)
}

func NewPauseSupervisor(logger *logrus.Logger, onTimeout func(roomID uuid.UUID)) *PauseSupervisor {
	return &PauseSupervisor{
		logger:    logger,
		pending:   make(map[uuid.UUID]map[uuid.UUID]bool),
		timers:    make(map[uuid.UUID]*time.Timer),
		seqs:      make(map[uuid.UUID]int),
		now:       time.Now,
		onTimeout: onTimeout,
	}
}

// PlayerDown records a disconnect while a game is in progress. The first
// drop opens the pause window (pausedAt/timeoutAt per the room's
// pauseTimeoutSeconds); later drops join the existing window, they do not
// extend it. Assumes the caller holds r.Mu.
func (ps *PauseSupervisor) PlayerDown(r *room.Room, userID uuid.UUID) {
	ps.mu.Lock()
	set := ps.pending[r.ID]
	if set == nil {
		set = make(map[uuid.UUID]bool)
		ps.pending[r.ID] = set
	}
	set[userID] = true
	ps.mu.Unlock()

	if r.IsPaused {
		return
	}

	now := ps.now()
	timeout := time.Duration(r.Settings.PauseTimeoutSeconds) * time.Second
	r.IsPaused = true
	r.PausedAt = now
	r.TimeoutAt = now.Add(timeout)

	ps.logger.WithFields(logrus.Fields{
		"room_id":    r.ID,
		"user_id":    userID,
		"timeout_at": r.TimeoutAt,
	}).Info("game paused on disconnect")

	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":      "game_paused",
		"userId":    userID.String(),
		"pausedAt":  r.PausedAt.Unix(),
		"timeoutAt": r.TimeoutAt.Unix(),
	})

	ps.schedule(r.ID, timeout)
}

// PlayerUp records a reconnect. The pause clears only once no tracked
// player remains down. Assumes the caller holds r.Mu.
func (ps *PauseSupervisor) PlayerUp(r *room.Room, userID uuid.UUID) {
	ps.mu.Lock()
	set := ps.pending[r.ID]
	delete(set, userID)
	allBack := len(set) == 0
	if allBack {
		delete(ps.pending, r.ID)
	}
	ps.mu.Unlock()

	if !r.IsPaused || !allBack {
		return
	}

	ps.cancel(r.ID)
	r.IsPaused = false
	r.PausedAt = time.Time{}
	r.TimeoutAt = time.Time{}

	ps.logger.WithFields(logrus.Fields{"room_id": r.ID, "user_id": userID}).Info("game resumed")
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":   "game_resumed",
		"userId": userID.String(),
	})
}

// TakePending returns and clears the set of still-down players for a room.
// Used by the timeout policy so it runs exactly once per window.
func (ps *PauseSupervisor) TakePending(roomID uuid.UUID) []uuid.UUID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	set := ps.pending[roomID]
	delete(ps.pending, roomID)
	out := make([]uuid.UUID, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	return out
}

// Cancel drops any window state for a room, e.g. when its game ends.
func (ps *PauseSupervisor) Cancel(roomID uuid.UUID) {
	ps.mu.Lock()
	delete(ps.pending, roomID)
	ps.mu.Unlock()
	ps.cancel(roomID)
}

func (ps *PauseSupervisor) schedule(roomID uuid.UUID, d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.seqs[roomID]++
	seq := ps.seqs[roomID]
	if t := ps.timers[roomID]; t != nil {
		t.Stop()
	}
	ps.timers[roomID] = time.AfterFunc(d, func() {
		ps.fire(roomID, seq)
	})
}

func (ps *PauseSupervisor) cancel(roomID uuid.UUID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.seqs[roomID]++
	if t := ps.timers[roomID]; t != nil {
		t.Stop()
		delete(ps.timers, roomID)
	}
}

func (ps *PauseSupervisor) fire(roomID uuid.UUID, seq int) {
	ps.mu.Lock()
	stale := ps.seqs[roomID] != seq
	delete(ps.timers, roomID)
	ps.mu.Unlock()
	if stale {
		ps.logger.WithField("room_id", roomID).Debug("stale pause timer ignored")
		return
	}
	if ps.onTimeout != nil {
		ps.onTimeout(roomID)
	}
}
