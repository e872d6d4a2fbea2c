// internal/handlers/room_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agraham02/family-games/internal/auth"
	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/games/spades"
	"github.com/agraham02/family-games/internal/room"
	"github.com/agraham02/family-games/internal/session"
)

func newTestServer() *Server {
	auth.Init()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store := room.NewStore(logger)
	registry := games.NewRegistry(logger, nil)
	registry.Register(spades.New())
	orch := session.NewOrchestrator(logger, store, registry)
	return NewServer(logger, store, registry, orch)
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateRoomEndpoint(t *testing.T) {
	s := newTestServer()
	w := postJSON(t, CreateRoomHandler(s), "/rooms/create", map[string]interface{}{
		"playerName": "Alice",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeBody(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.NotEmpty(t, resp["userId"])

	roomObj, ok := resp["room"].(map[string]interface{})
	require.True(t, ok)
	code, _ := roomObj["code"].(string)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
	assert.Equal(t, "lobby", roomObj["state"])
}

func TestCreateRoomRejectsBadName(t *testing.T) {
	s := newTestServer()
	w := postJSON(t, CreateRoomHandler(s), "/rooms/create", map[string]interface{}{
		"playerName": "!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinRoomEndpoint(t *testing.T) {
	s := newTestServer()
	created := decodeBody(t, postJSON(t, CreateRoomHandler(s), "/rooms/create", map[string]interface{}{
		"playerName": "Alice",
	}))
	code := created["room"].(map[string]interface{})["code"].(string)

	w := postJSON(t, JoinRoomHandler(s), "/rooms/join", map[string]interface{}{
		"code":       code,
		"playerName": "Bob",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody(t, w)
	users := resp["room"].(map[string]interface{})["users"].([]interface{})
	assert.Len(t, users, 2)

	// Unknown code maps to 404.
	w = postJSON(t, JoinRoomHandler(s), "/rooms/join", map[string]interface{}{
		"code":       "ZZZZZZ",
		"playerName": "Cara",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinRoomRejoinWithToken(t *testing.T) {
	s := newTestServer()
	created := decodeBody(t, postJSON(t, CreateRoomHandler(s), "/rooms/create", map[string]interface{}{
		"playerName": "Alice",
	}))
	code := created["room"].(map[string]interface{})["code"].(string)

	joined := decodeBody(t, postJSON(t, JoinRoomHandler(s), "/rooms/join", map[string]interface{}{
		"code":       code,
		"playerName": "Bob",
	}))

	// Rejoining with the minted token reclaims the same seat.
	again := decodeBody(t, postJSON(t, JoinRoomHandler(s), "/rooms/join", map[string]interface{}{
		"code":       code,
		"playerName": "Bob",
		"token":      joined["token"],
	}))
	assert.Equal(t, joined["userId"], again["userId"])

	users := again["room"].(map[string]interface{})["users"].([]interface{})
	assert.Len(t, users, 2, "no duplicate seat created")
}

func TestRequestJoinRateLimited(t *testing.T) {
	s := newTestServer()
	created := decodeBody(t, postJSON(t, CreateRoomHandler(s), "/rooms/create", map[string]interface{}{
		"playerName": "Alice",
	}))
	code := created["room"].(map[string]interface{})["code"].(string)

	w := postJSON(t, RequestJoinHandler(s), "/rooms/request-join", map[string]interface{}{
		"code":          code,
		"requesterName": "Eve",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	requesterID := decodeBody(t, w)["requesterId"].(string)

	w = postJSON(t, RequestJoinHandler(s), "/rooms/request-join", map[string]interface{}{
		"code":          code,
		"requesterName": "Eve",
		"requesterId":   requesterID,
	})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestListGamesEndpoint(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/games/list", nil)
	w := httptest.NewRecorder()
	ListGamesHandler(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	list := resp["games"].([]interface{})
	require.Len(t, list, 1)
	meta := list[0].(map[string]interface{})
	assert.Equal(t, "spades", meta["type"])
	assert.Equal(t, true, meta["enabled"])
}

func TestSettingsSchemaEndpoint(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/games/schema?type=spades", nil)
	w := httptest.NewRecorder()
	GameSettingsSchemaHandler(s).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody(t, w)
	assert.Contains(t, resp["schema"].(map[string]interface{}), "winTarget")
	assert.Contains(t, resp["defaults"].(map[string]interface{}), "winTarget")

	req = httptest.NewRequest("GET", "/games/schema?type=nope", nil)
	w = httptest.NewRecorder()
	GameSettingsSchemaHandler(s).ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTeamsEndpoint(t *testing.T) {
	s := newTestServer()
	created := decodeBody(t, postJSON(t, CreateRoomHandler(s), "/rooms/create", map[string]interface{}{
		"playerName": "Alice",
	}))
	roomObj := created["room"].(map[string]interface{})
	code := roomObj["code"].(string)
	roomID := roomObj["id"].(string)
	aliceID := created["userId"].(string)
	token := created["token"].(string)

	joined := decodeBody(t, postJSON(t, JoinRoomHandler(s), "/rooms/join", map[string]interface{}{
		"code":       code,
		"playerName": "Bob",
	}))
	bobID := joined["userId"].(string)

	require.NoError(t, s.Store.SelectGameType(uuid.MustParse(roomID), uuid.MustParse(aliceID), "spades"))

	body, err := json.Marshal(map[string]interface{}{
		"teams": [][]string{{aliceID, ""}, {bobID, ""}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest("PUT", "/rooms/teams/"+roomID, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	UpdateTeamsHandler(s).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody(t, w)
	teams := resp["room"].(map[string]interface{})["teams"].([]interface{})
	assert.Len(t, teams, 2)

	// A duplicate assignment is rejected and nothing commits.
	body, err = json.Marshal(map[string]interface{}{
		"teams": [][]string{{aliceID, aliceID}, {bobID, ""}},
	})
	require.NoError(t, err)
	req = httptest.NewRequest("PUT", "/rooms/teams/"+roomID, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	UpdateTeamsHandler(s).ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// No token, no update.
	req = httptest.NewRequest("PUT", "/rooms/teams/"+roomID, bytes.NewReader(body))
	w = httptest.NewRecorder()
	UpdateTeamsHandler(s).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetRoomRequiresMembership(t *testing.T) {
	s := newTestServer()
	created := decodeBody(t, postJSON(t, CreateRoomHandler(s), "/rooms/create", map[string]interface{}{
		"playerName": "Alice",
	}))
	token := created["token"].(string)

	req := httptest.NewRequest("GET", "/rooms/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	GetRoomHandler(s).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/rooms/me", nil)
	w = httptest.NewRecorder()
	GetRoomHandler(s).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code, "missing token is rejected")
}
