// internal/session/orchestrator.go
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agraham02/family-games/internal/apperr"
	"github.com/agraham02/family-games/internal/cache"
	"github.com/agraham02/family-games/internal/database"
	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/models"
	"github.com/agraham02/family-games/internal/room"
)

// activeGame binds a running session to the engine that owns it.
type activeGame struct {
	module      games.Module
	session     games.Session
	gameType    string
	actionIndex int
	forfeited   map[uuid.UUID]bool
}

// handDealer is implemented by engines that issue private hand events after
// a deal. Optional; engines without hidden hands skip it.
type handDealer interface {
	DealHandEvents(s games.Session) []games.Event
}

// Orchestrator drives game sessions on top of the room store. It is the
// only component that calls into rule engines; every engine invocation runs
// under the owning room's lock, so actions on one room are strictly
// serialized while distinct rooms proceed independently.
type Orchestrator struct {
	logger   *logrus.Logger
	store    *room.Store
	registry *games.Registry

	// newShuffler is swapped for a seeded source in tests.
	newShuffler func() games.Shuffler

	supervisor *PauseSupervisor

	mu     sync.Mutex
	active map[uuid.UUID]*activeGame
}

func NewOrchestrator(logger *logrus.Logger, store *room.Store, registry *games.Registry) *Orchestrator {
	o := &Orchestrator{
		logger:      logger,
		store:       store,
		registry:    registry,
		newShuffler: games.NewShuffler,
		active:      make(map[uuid.UUID]*activeGame),
	}
	o.supervisor = NewPauseSupervisor(logger, o.handlePauseTimeout)
	return o
}

// Supervisor exposes the pause supervisor for transport wiring.
func (o *Orchestrator) Supervisor() *PauseSupervisor { return o.supervisor }

func (o *Orchestrator) gameFor(roomID uuid.UUID) *activeGame {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[roomID]
}

func (o *Orchestrator) putGame(roomID uuid.UUID, ag *activeGame) {
	o.mu.Lock()
	o.active[roomID] = ag
	o.mu.Unlock()
}

func (o *Orchestrator) dropGame(roomID uuid.UUID) {
	o.mu.Lock()
	delete(o.active, roomID)
	o.mu.Unlock()
	o.supervisor.Cancel(roomID)
}

// StartGame validates lobby readiness and spins up a session for the room's
// selected game type. Only the leader may start; every non-spectator must be
// ready unless the leader forces the start, and team slots must be
// completely filled when the game requires teams.
func (o *Orchestrator) StartGame(ctx context.Context, roomID, byUserID uuid.UUID, force bool) error {
	r, err := o.store.GetRoom(roomID)
	if err != nil {
		return err
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if byUserID != r.LeaderID {
		return apperr.Forbidden("only the leader can start the game")
	}
	if r.State != room.StateLobby {
		return apperr.Conflict("game already started")
	}
	if r.SelectedGameType == "" {
		return apperr.BadRequest("no game type selected")
	}
	mod := o.registry.GetModule(r.SelectedGameType)
	if mod == nil {
		return apperr.BadRequest("unknown game type %q", r.SelectedGameType)
	}

	meta := mod.Meta()
	players := r.ActivePlayersUnsafe()
	if len(players) < meta.MinPlayers {
		return apperr.Conflict("%s needs at least %d players, have %d", meta.DisplayName, meta.MinPlayers, len(players))
	}
	if meta.MaxPlayers > 0 && len(players) > meta.MaxPlayers {
		return apperr.Conflict("%s allows at most %d players, have %d", meta.DisplayName, meta.MaxPlayers, len(players))
	}
	if !force && !r.AllReadyUnsafe() {
		return apperr.Conflict("all players must be ready")
	}
	if meta.Teams != nil {
		if err := r.ValidateTeamsUnsafe(r.Teams, meta.Teams, true); err != nil {
			return err
		}
	}

	sess, err := mod.Initialize(players, r.Teams, r.GameSettings[r.SelectedGameType], o.newShuffler())
	if err != nil {
		return apperr.BadRequest("cannot start %s: %v", meta.DisplayName, err)
	}

	ag := &activeGame{
		module:    mod,
		session:   sess,
		gameType:  r.SelectedGameType,
		forfeited: make(map[uuid.UUID]bool),
	}
	o.putGame(r.ID, ag)
	r.State = room.StateInGame

	o.logger.WithFields(logrus.Fields{
		"room_id":   r.ID,
		"game_type": ag.gameType,
		"players":   len(players),
	}).Info("game started")

	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":     "game_started",
		"gameType": ag.gameType,
	})
	r.BroadcastRoomStateUnsafe()
	o.sendHandsUnsafe(r, ag)
	o.sendSnapshotsUnsafe(r, ag)
	o.logActionUnsafe(ctx, r, ag, byUserID, "start_game", nil)
	return nil
}

// ApplyAction routes one player action into the room's engine. Spectators,
// paused games, and out-of-turn submissions (for non-exempt action types)
// are rejected before the engine sees the action.
func (o *Orchestrator) ApplyAction(ctx context.Context, roomID, userID uuid.UUID, action models.GameAction) error {
	r, err := o.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	ag := o.gameFor(roomID)
	if ag == nil {
		return apperr.Conflict("no game in progress")
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.State != room.StateInGame {
		return apperr.Conflict("no game in progress")
	}
	if r.IsPaused {
		return apperr.Forbidden("game is paused")
	}
	if r.MemberUnsafe(userID) == nil || r.Spectators[userID] {
		return apperr.Forbidden("not an active player in this room")
	}
	if ag.forfeited[userID] {
		return apperr.Forbidden("player has forfeited")
	}
	if !ag.module.TurnExempt(ag.session, action.ActionType) {
		env := ag.session.Envelope()
		if env.CurrentTurnIndex < 0 || env.CurrentTurnIndex >= len(env.PlayOrder) ||
			env.PlayOrder[env.CurrentTurnIndex] != userID {
			return apperr.Forbidden("not your turn")
		}
	}

	res, err := ag.module.ApplyAction(ag.session, userID, action)
	if err != nil {
		return err
	}

	o.logActionUnsafe(ctx, r, ag, userID, action.ActionType, action.Payload)
	o.commitStepUnsafe(ctx, r, ag, res)
	return nil
}

// LeaveRoom removes a member. Leaving an in-progress game is an immediate
// forfeit, unlike a disconnect which opens the pause window.
func (o *Orchestrator) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) error {
	r, err := o.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	ag := o.gameFor(roomID)

	if ag != nil {
		r.Mu.Lock()
		if r.State == room.StateInGame && r.MemberUnsafe(userID) != nil && !r.Spectators[userID] {
			o.forfeitUnsafe(ctx, r, ag, userID)
		}
		r.Mu.Unlock()
	}
	return o.store.LeaveRoom(roomID, userID)
}

// KickUser removes a member on the leader's order. An in-game kick is
// handled like a connection drop: the pause window opens, and since the
// kicked player is banned from rejoining, the timeout policy forfeits them.
func (o *Orchestrator) KickUser(ctx context.Context, roomID, targetUserID, byUserID uuid.UUID) error {
	r, err := o.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	ag := o.gameFor(roomID)

	if ag != nil {
		r.Mu.Lock()
		if r.State == room.StateInGame && r.MemberUnsafe(targetUserID) != nil &&
			!r.Spectators[targetUserID] && byUserID == r.LeaderID && targetUserID != byUserID &&
			!ag.forfeited[targetUserID] {
			o.supervisor.PlayerDown(r, targetUserID)
		}
		r.Mu.Unlock()
	}
	return o.store.KickUser(roomID, targetUserID, byUserID)
}

// HandleDisconnect marks a member's connection down. During a game this
// opens (or joins) the pause window; in the lobby it just updates presence.
func (o *Orchestrator) HandleDisconnect(roomID, userID uuid.UUID) {
	r, err := o.store.GetRoom(roomID)
	if err != nil {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	u := r.MemberUnsafe(userID)
	if u == nil {
		return
	}
	u.Connected = false

	ag := o.gameFor(roomID)
	if r.State == room.StateInGame && ag != nil && !r.Spectators[userID] && !ag.forfeited[userID] {
		o.supervisor.PlayerDown(r, userID)
	}
	r.BroadcastRoomStateUnsafe()
}

// HandleReconnect marks a member back online, resumes the game once every
// tracked player is back, and replays the reconnector's private view.
func (o *Orchestrator) HandleReconnect(roomID, userID uuid.UUID) {
	r, err := o.store.GetRoom(roomID)
	if err != nil {
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	u := r.MemberUnsafe(userID)
	if u == nil {
		return
	}
	u.Connected = true

	ag := o.gameFor(roomID)
	if r.State == room.StateInGame && ag != nil {
		o.supervisor.PlayerUp(r, userID)
		r.BroadcastToUserUnsafe(userID, map[string]interface{}{
			"type":  "game_state",
			"state": ag.session.Snapshot(userID),
		})
	}
	r.BroadcastRoomStateUnsafe()
}

// handlePauseTimeout is the pause window expiring: every still-disconnected
// player forfeits, and the game ends early if fewer than two live players
// remain.
func (o *Orchestrator) handlePauseTimeout(roomID uuid.UUID) {
	r, err := o.store.GetRoom(roomID)
	if err != nil {
		return
	}
	ag := o.gameFor(roomID)
	if ag == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if !r.IsPaused || r.State != room.StateInGame {
		return
	}
	r.IsPaused = false
	r.PausedAt = time.Time{}
	r.TimeoutAt = time.Time{}

	down := o.supervisor.TakePending(roomID)
	o.logger.WithFields(logrus.Fields{
		"room_id":    roomID,
		"forfeiting": len(down),
	}).Warn("pause window expired")

	r.BroadcastAllUnsafe(map[string]interface{}{
		"type": "pause_timeout",
	})

	for _, uid := range down {
		if r.State != room.StateInGame {
			break
		}
		o.forfeitUnsafe(ctx, r, ag, uid)
	}
	if r.State == room.StateInGame {
		r.BroadcastRoomStateUnsafe()
	}
}

// forfeitUnsafe runs the engine's forfeit policy for one player and ends the
// game when too few live players remain. Assumes r.Mu is held.
func (o *Orchestrator) forfeitUnsafe(ctx context.Context, r *room.Room, ag *activeGame, userID uuid.UUID) {
	if ag.forfeited[userID] {
		return
	}
	ag.forfeited[userID] = true

	res, err := ag.module.Forfeit(ag.session, userID)
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"room_id": r.ID,
			"user_id": userID,
		}).Error("forfeit failed")
		return
	}
	o.logActionUnsafe(ctx, r, ag, userID, "forfeit", nil)
	o.commitStepUnsafe(ctx, r, ag, res)
	if r.State != room.StateInGame {
		return
	}

	live := 0
	for _, uid := range r.ActivePlayersUnsafe() {
		if !ag.forfeited[uid] {
			live++
		}
	}
	if live < 2 {
		o.finishGameUnsafe(ctx, r, ag)
	}
}

// commitStepUnsafe fans out the step's events, advances round boundaries,
// and closes out the game when the engine reports it over. Assumes r.Mu is
// held.
func (o *Orchestrator) commitStepUnsafe(ctx context.Context, r *room.Room, ag *activeGame, res *games.StepResult) {
	if res == nil {
		return
	}
	o.sendEventsUnsafe(r, res.Events)

	if res.GameOver {
		o.finishGameUnsafe(ctx, r, ag)
		return
	}
	if res.RoundOver {
		next, err := ag.module.StartNextRound(ag.session, o.newShuffler())
		if err != nil {
			o.logger.WithError(err).WithField("room_id", r.ID).Error("next round failed")
			o.finishGameUnsafe(ctx, r, ag)
			return
		}
		o.sendEventsUnsafe(r, next.Events)
		o.sendHandsUnsafe(r, ag)
	}
	o.sendSnapshotsUnsafe(r, ag)
}

// finishGameUnsafe moves the room to Ended, announces the final score
// report, and persists the result. Assumes r.Mu is held.
func (o *Orchestrator) finishGameUnsafe(ctx context.Context, r *room.Room, ag *activeGame) {
	report := ag.module.ComputeScores(ag.session)
	r.State = room.StateEnded
	r.IsPaused = false
	r.PausedAt = time.Time{}
	r.TimeoutAt = time.Time{}

	o.logger.WithFields(logrus.Fields{
		"room_id":   r.ID,
		"game_type": ag.gameType,
		"winners":   report.WinnerTeams,
		"tie":       report.Tie,
	}).Info("game over")

	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":   "game_over",
		"report": report,
	})
	r.BroadcastRoomStateUnsafe()

	o.dropGame(r.ID)
	o.persistResult(r, ag, report)
}

// persistResult writes the final standings to Postgres. Fire-and-forget:
// results are a convenience record, never on the hot path.
func (o *Orchestrator) persistResult(r *room.Room, ag *activeGame, report games.ScoreReport) {
	winnerIDs := make([]uuid.UUID, 0)
	for _, ti := range report.WinnerTeams {
		for _, ts := range report.Teams {
			if ts.TeamIndex == ti {
				winnerIDs = append(winnerIDs, ts.Players...)
			}
		}
	}
	scores := make(map[string]int, len(report.PlayerScores))
	for pid, sc := range report.PlayerScores {
		scores[pid.String()] = sc
	}
	res := database.GameResult{
		RoomID:     r.ID,
		GameType:   ag.gameType,
		WinnerIDs:  winnerIDs,
		Scores:     scores,
		Tie:        report.Tie,
		FinishedAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.SaveGameResult(ctx, res); err != nil {
			o.logger.WithError(err).WithField("room_id", r.ID).Warn("failed to save game result")
		}
	}()
}

// sendEventsUnsafe routes engine events: To==uuid.Nil broadcasts, anything
// else is delivered privately. Assumes r.Mu is held.
func (o *Orchestrator) sendEventsUnsafe(r *room.Room, events []games.Event) {
	for _, ev := range events {
		msg := map[string]interface{}{
			"type":    ev.Type,
			"payload": ev.Payload,
		}
		if ev.To == uuid.Nil {
			r.BroadcastAllUnsafe(msg)
		} else {
			r.BroadcastToUserUnsafe(ev.To, msg)
		}
	}
}

// sendHandsUnsafe delivers private hand events when the engine deals them.
func (o *Orchestrator) sendHandsUnsafe(r *room.Room, ag *activeGame) {
	dealer, ok := ag.module.(handDealer)
	if !ok {
		return
	}
	o.sendEventsUnsafe(r, dealer.DealHandEvents(ag.session))
}

// sendSnapshotsUnsafe sends every member their personal view of the
// session, spectators included (they get the redacted public view).
func (o *Orchestrator) sendSnapshotsUnsafe(r *room.Room, ag *activeGame) {
	for _, u := range r.Users {
		r.BroadcastToUserUnsafe(u.ID, map[string]interface{}{
			"type":  "game_state",
			"state": ag.session.Snapshot(u.ID),
		})
	}
}

// logActionUnsafe appends the action to the room's Redis action log.
// Fire-and-forget with a nil-client guard inside the cache package.
func (o *Orchestrator) logActionUnsafe(ctx context.Context, r *room.Room, ag *activeGame, actor uuid.UUID, actionType string, payload map[string]interface{}) {
	ag.actionIndex++
	record := cache.RoomActionRecord{
		RoomID:      r.ID,
		ActionIndex: ag.actionIndex,
		ActorUserID: actor,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   time.Now().UnixMilli(),
	}
	go func() {
		if err := cache.PublishRoomAction(context.WithoutCancel(ctx), record); err != nil {
			o.logger.WithError(err).WithField("room_id", r.ID).Debug("action log publish failed")
		}
	}()
}
