// internal/handlers/server.go
package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/room"
	"github.com/agraham02/family-games/internal/session"
)

// Server bundles the room store, game registry, and orchestrator behind the
// HTTP and websocket boundary.
type Server struct {
	Logger   *logrus.Logger
	Store    *room.Store
	Registry *games.Registry
	Orch     *session.Orchestrator
	Hub      *Hub
}

func NewServer(logger *logrus.Logger, store *room.Store, registry *games.Registry, orch *session.Orchestrator) *Server {
	return &Server{
		Logger:   logger,
		Store:    store,
		Registry: registry,
		Orch:     orch,
		Hub:      NewHub(logger),
	}
}

// attachTransport installs the hub's fan-out functions on a freshly created
// room. Empty-room deletion stays with the store's janitor.
func (s *Server) attachTransport(r *room.Room) {
	roomID := r.ID
	r.BroadcastFn = func(msg map[string]interface{}) {
		s.Hub.Broadcast(roomID, msg)
	}
	r.BroadcastToUserFn = func(userID uuid.UUID, msg map[string]interface{}) {
		s.Hub.Send(roomID, userID, msg)
	}
}

// Hub tracks live websocket connections per room and fans messages out to
// them. Send on a full client queue drops the message rather than blocking
// the room actor.
type Hub struct {
	logger *logrus.Logger

	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]*wsConn
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[uuid.UUID]map[uuid.UUID]*wsConn),
	}
}

// Add registers a connection, replacing any previous one for the same user.
// The replaced connection, if any, is returned so the caller can close it.
func (h *Hub) Add(roomID uuid.UUID, conn *wsConn) *wsConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.rooms[roomID]
	if conns == nil {
		conns = make(map[uuid.UUID]*wsConn)
		h.rooms[roomID] = conns
	}
	prev := conns[conn.UserID]
	conns[conn.UserID] = conn
	return prev
}

// Remove drops a connection if it is still the current one for its user.
// Returns false when a newer connection has already replaced it.
func (h *Hub) Remove(roomID uuid.UUID, conn *wsConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.rooms[roomID]
	if conns == nil || conns[conn.UserID] != conn {
		return false
	}
	delete(conns, conn.UserID)
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	}
	return true
}

// Broadcast sends a message to every connection in the room.
func (h *Hub) Broadcast(roomID uuid.UUID, msg map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.rooms[roomID] {
		conn.enqueue(h.logger, msg)
	}
}

// Send delivers a message to one user's connection, if present.
func (h *Hub) Send(roomID, userID uuid.UUID, msg map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn := h.rooms[roomID][userID]; conn != nil {
		conn.enqueue(h.logger, msg)
	}
}
