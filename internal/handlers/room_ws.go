// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agraham02/family-games/internal/apperr"
	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/middleware"
	"github.com/agraham02/family-games/internal/models"
	"github.com/agraham02/family-games/internal/room"
)

// wsConn is one live websocket attachment of a room member.
type wsConn struct {
	UserID  uuid.UUID
	Cancel  context.CancelFunc
	OutChan chan map[string]interface{}
}

// enqueue queues a message without blocking; a slow client loses messages
// instead of stalling the room.
func (c *wsConn) enqueue(logger *logrus.Logger, msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		logger.WithField("user_id", c.UserID).Warn("dropping message for slow client")
	}
}

func (c *wsConn) writeError(msg string) {
	select {
	case c.OutChan <- map[string]interface{}{"type": "error", "message": msg}:
	default:
	}
}

// RoomWSHandler upgrades to the room websocket. The URL carries the room
// code or id after the prefix; the session token rides the token query
// parameter. Clients must have joined over HTTP first.
func RoomWSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		rm, err := roomFromPath(s, r, "/rooms/ws/")
		if err != nil {
			writeError(w, err)
			return
		}

		claims, err := tokenClaims(r)
		if err != nil || claims.RoomID != rm.ID {
			writeError(w, apperr.Forbidden("invalid session token"))
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		rm.Mu.Lock()
		member := rm.MemberUnsafe(claims.UserID)
		rm.Mu.Unlock()
		if member == nil {
			c.Close(NotARoomMemberError, "join the room before connecting")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := &wsConn{
			UserID:  claims.UserID,
			Cancel:  cancel,
			OutChan: make(chan map[string]interface{}, 32),
		}

		if prev := s.Hub.Add(rm.ID, conn); prev != nil {
			prev.Cancel()
		}
		middleware.LogWebSocketConnect(s.Logger, remoteAddr, r.URL.Path)

		s.Orch.HandleReconnect(rm.ID, claims.UserID)

		go writePump(ctx, c, conn, s.Logger)
		left := readPump(ctx, c, s, rm, conn)

		middleware.LogWebSocketDisconnect(s.Logger, remoteAddr, r.URL.Path, nil)
		if s.Hub.Remove(rm.ID, conn) && !left {
			// Connection dropped without an explicit leave; open the pause
			// window if a game is running.
			s.Orch.HandleDisconnect(rm.ID, claims.UserID)
		}
	}
}

// readPump processes inbound frames until the connection dies. Returns true
// when the client left the room explicitly.
func readPump(ctx context.Context, c *websocket.Conn, s *Server, rm *room.Room, conn *wsConn) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure && closeStatus != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				s.Logger.Warnf("room %s: read error for user %v: %v", rm.Code, conn.UserID, err)
			}
			return false
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			conn.writeError("invalid JSON")
			continue
		}

		if handleRoomMessage(ctx, s, rm, conn, packet) {
			return true
		}
	}
}

// handleRoomMessage dispatches one client packet. Returns true when the
// client left the room.
func handleRoomMessage(ctx context.Context, s *Server, rm *room.Room, conn *wsConn, packet map[string]interface{}) bool {
	action, _ := packet["type"].(string)

	switch action {
	case "set_ready":
		ready, _ := packet["ready"].(bool)
		sendResult(conn, s.Store.SetReady(rm.ID, conn.UserID, ready))

	case "select_game":
		gameType, _ := packet["gameType"].(string)
		sendResult(conn, s.Store.SelectGameType(rm.ID, conn.UserID, gameType))

	case "assign_teams":
		teams, err := parseTeams(packet["teams"])
		if err != nil {
			sendResult(conn, err)
			return false
		}
		var req *games.TeamRequirement
		rm.Mu.Lock()
		selected := rm.SelectedGameType
		rm.Mu.Unlock()
		if mod := s.Registry.GetModule(selected); mod != nil {
			req = mod.Meta().Teams
		}
		sendResult(conn, s.Store.AssignTeams(rm.ID, teams, req))

	case "update_settings":
		var settings room.Settings
		if err := decodeField(packet["settings"], &settings); err != nil {
			sendResult(conn, apperr.BadRequest("invalid settings payload"))
			return false
		}
		sendResult(conn, s.Store.UpdateSettings(rm.ID, conn.UserID, settings))

	case "set_game_settings":
		gameType, _ := packet["gameType"].(string)
		settings, _ := packet["settings"].(map[string]interface{})
		sendResult(conn, s.Store.SetGameSettings(rm.ID, conn.UserID, gameType, settings))

	case "start_game":
		force, _ := packet["force"].(bool)
		sendResult(conn, s.Orch.StartGame(ctx, rm.ID, conn.UserID, force))

	case "game_action":
		actionType, _ := packet["actionType"].(string)
		payload, _ := packet["payload"].(map[string]interface{})
		err := s.Orch.ApplyAction(ctx, rm.ID, conn.UserID, models.GameAction{
			ActionType: actionType,
			Payload:    payload,
		})
		var illegal *games.IllegalMoveError
		if errors.As(err, &illegal) {
			conn.enqueue(s.Logger, map[string]interface{}{
				"type":   "action_rejected",
				"reason": illegal.Reason,
				"detail": illegal.Detail,
			})
			return false
		}
		sendResult(conn, err)

	case "kick_user":
		targetStr, _ := packet["userId"].(string)
		target, err := uuid.Parse(targetStr)
		if err != nil {
			sendResult(conn, apperr.BadRequest("invalid userId"))
			return false
		}
		sendResult(conn, s.Orch.KickUser(ctx, rm.ID, target, conn.UserID))

	case "leave_room":
		if err := s.Orch.LeaveRoom(ctx, rm.ID, conn.UserID); err != nil {
			sendResult(conn, err)
			return false
		}
		rm.Mu.Lock()
		rm.BroadcastRoomStateUnsafe()
		rm.Mu.Unlock()
		return true

	case "chat":
		msg, _ := packet["msg"].(string)
		if msg == "" {
			return false
		}
		rm.Mu.Lock()
		rm.BroadcastAllUnsafe(map[string]interface{}{
			"type":   "chat",
			"userId": conn.UserID.String(),
			"msg":    msg,
		})
		rm.Mu.Unlock()

	default:
		conn.writeError("unknown action type: " + action)
	}
	return false
}

// sendResult reports command failure back to the sender; success is silent
// because state changes arrive as room_state broadcasts.
func sendResult(conn *wsConn, err error) {
	if err != nil {
		conn.writeError(err.Error())
	}
}

func parseTeams(raw interface{}) ([][]uuid.UUID, error) {
	rows, ok := raw.([]interface{})
	if !ok {
		return nil, apperr.BadRequest("invalid teams payload")
	}
	teams := make([][]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		slots, ok := row.([]interface{})
		if !ok {
			return nil, apperr.BadRequest("invalid teams payload")
		}
		team := make([]uuid.UUID, 0, len(slots))
		for _, slot := range slots {
			str, _ := slot.(string)
			if str == "" {
				team = append(team, uuid.Nil)
				continue
			}
			id, err := uuid.Parse(str)
			if err != nil {
				return nil, apperr.BadRequest("invalid player id in teams: %q", str)
			}
			team = append(team, id)
		}
		teams = append(teams, team)
	}
	return teams, nil
}

// decodeField re-marshals a decoded JSON fragment into a typed struct.
func decodeField(raw interface{}, v interface{}) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writePump drains the connection's outbound queue and keeps the socket
// alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *wsConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for user %v: %v", conn.UserID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ping failed for user %v: %v", conn.UserID, err)
				return
			}
		}
	}
}
