// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/agraham02/family-games/internal/apperr"
	"github.com/agraham02/family-games/internal/auth"
	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/room"
)

// CreateRoomHandler creates an in-memory room with the caller as leader and
// returns a session token scoped to it.
func CreateRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			RoomName   string `json:"roomName"`
			PlayerName string `json:"playerName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.BadRequest("bad request payload"))
			return
		}

		rm, user, err := s.Store.CreateRoom(req.RoomName, req.PlayerName)
		if err != nil {
			writeError(w, err)
			return
		}
		s.attachTransport(rm)

		token, err := auth.CreateSessionToken(user.ID, rm.ID)
		if err != nil {
			writeError(w, apperr.Internal(err))
			return
		}

		rm.Mu.Lock()
		snap := rm.SnapshotUnsafe()
		rm.Mu.Unlock()

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"room":   snap,
			"userId": user.ID.String(),
			"token":  token,
		})
	}
}

// JoinRoomHandler joins a room by its 6-character code. A valid session
// token for the same room reclaims the existing seat instead of creating a
// new member, which is how clients rejoin after losing their connection.
func JoinRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Code       string `json:"code"`
			PlayerName string `json:"playerName"`
			Token      string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.BadRequest("bad request payload"))
			return
		}

		existingUserID := uuid.Nil
		if req.Token != "" {
			claims, err := auth.VerifySessionToken(req.Token)
			if err == nil {
				if rm, lookupErr := s.Store.GetRoomByCode(req.Code); lookupErr == nil && rm.ID == claims.RoomID {
					existingUserID = claims.UserID
				}
			}
		}

		rm, user, err := s.Store.JoinRoom(req.Code, req.PlayerName, existingUserID)
		if err != nil {
			writeError(w, err)
			return
		}

		token, err := auth.CreateSessionToken(user.ID, rm.ID)
		if err != nil {
			writeError(w, apperr.Internal(err))
			return
		}

		rm.Mu.Lock()
		snap := rm.SnapshotUnsafe()
		rm.Mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"room":   snap,
			"userId": user.ID.String(),
			"token":  token,
		})
	}
}

// RequestJoinHandler notifies a room's leader that someone outside wants in.
// Rate limited per requester per room.
func RequestJoinHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Code          string `json:"code"`
			RequesterName string `json:"requesterName"`
			RequesterID   string `json:"requesterId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.BadRequest("bad request payload"))
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			// First request from this client; assign them an identity so
			// retries count against the same cooldown.
			requesterID, _ = uuid.NewRandom()
		}

		if err := s.Store.RequestToJoin(req.Code, requesterID, req.RequesterName); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"requesterId": requesterID.String(),
		})
	}
}

// GetRoomHandler returns the snapshot for a room the caller belongs to.
func GetRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := tokenClaims(r)
		if err != nil {
			writeError(w, apperr.Forbidden("invalid session token"))
			return
		}
		rm, err := s.Store.GetRoom(claims.RoomID)
		if err != nil {
			writeError(w, err)
			return
		}

		rm.Mu.Lock()
		defer rm.Mu.Unlock()
		if rm.MemberUnsafe(claims.UserID) == nil {
			writeError(w, apperr.Forbidden("not a member of this room"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"room": rm.SnapshotUnsafe()})
	}
}

// UpdateTeamsHandler replaces the room's team assignment, e.g.
// PUT /rooms/teams/{roomID}. Empty strings mark unfilled slots; validation
// runs against the selected game's team requirement before anything commits.
func UpdateTeamsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		claims, err := tokenClaims(r)
		if err != nil {
			writeError(w, apperr.Forbidden("invalid session token"))
			return
		}
		rm, err := roomFromPath(s, r, "/rooms/teams/")
		if err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			Teams interface{} `json:"teams"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.BadRequest("bad request payload"))
			return
		}
		teams, err := parseTeams(req.Teams)
		if err != nil {
			writeError(w, err)
			return
		}

		rm.Mu.Lock()
		member := rm.MemberUnsafe(claims.UserID) != nil
		selected := rm.SelectedGameType
		rm.Mu.Unlock()
		if rm.ID != claims.RoomID || !member {
			writeError(w, apperr.Forbidden("not a member of this room"))
			return
		}

		var teamReq *games.TeamRequirement
		if mod := s.Registry.GetModule(selected); mod != nil {
			teamReq = mod.Meta().Teams
		}
		if err := s.Store.AssignTeams(rm.ID, teams, teamReq); err != nil {
			writeError(w, err)
			return
		}

		rm.Mu.Lock()
		snap := rm.SnapshotUnsafe()
		rm.Mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{"room": snap})
	}
}

// ListGamesHandler lists every registered game with its availability flags.
func ListGamesHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"games": s.Registry.ListGames(r.Context()),
		})
	}
}

// GameSettingsSchemaHandler returns the settings schema and defaults for one
// game type, e.g. GET /games/schema?type=spades.
func GameSettingsSchemaHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameType := strings.TrimSpace(r.URL.Query().Get("type"))
		schema, defaults, ok := s.Registry.GetSettingsSchema(gameType)
		if !ok {
			writeError(w, apperr.NotFound("unknown game type %q", gameType))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"type":     gameType,
			"schema":   schema,
			"defaults": defaults,
		})
	}
}

// tokenClaims pulls the session token from the Authorization header (or the
// token query parameter for websocket upgrades) and verifies it.
func tokenClaims(r *http.Request) (auth.SessionClaims, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return auth.SessionClaims{}, apperr.Forbidden("missing session token")
	}
	return auth.VerifySessionToken(token)
}

// roomFromPath resolves the trailing path segment as a room code or id.
func roomFromPath(s *Server, r *http.Request, prefix string) (*room.Room, error) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if raw == "" {
		return nil, apperr.BadRequest("missing room identifier")
	}
	if id, err := uuid.Parse(raw); err == nil {
		return s.Store.GetRoom(id)
	}
	return s.Store.GetRoomByCode(raw)
}
