package calls

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/patient-portal/internal/observability/metrics"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Hub tracks signaling sockets per user. A user may have several tabs
// open; every tab receives every event.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	metrics *metrics.CallMetrics
	logger  *logging.Logger
}

type client struct {
	userID string
	send   chan []byte
}

// offer queues data without blocking. Only the owning read loop may call
// it, since that loop is the one that closes send.
func (c *client) offer(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func NewHub(m *metrics.CallMetrics, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		metrics: m,
		logger:  logger,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.metrics.ConnectionOpened()
}

// unregister reports whether c was the user's last open socket.
func (h *Hub) unregister(c *client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
		last = true
	}
	close(c.send)
	h.metrics.ConnectionClosed()
	return last
}

// Notify implements Notifier. Slow sockets drop events rather than block
// the manager.
func (h *Hub) Notify(userID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("call event marshal failed", "error", err)
		return
	}
	h.send(userID, data)
}

func (h *Hub) send(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("call socket buffer full, event dropped", "user_id", userID)
		}
	}
}

// Connections returns the number of open sockets for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Command is what a socket sends to act on an invitation.
type Command struct {
	Action       string `json:"action"`
	InvitationID string `json:"invitation_id"`
}

type commandError struct {
	Type         string `json:"type"`
	Action       string `json:"action,omitempty"`
	InvitationID string `json:"invitation_id,omitempty"`
	Error        string `json:"error"`
}

// UserResolver returns the authenticated user for a socket request.
type UserResolver func(r *http.Request) (string, bool)

// SocketHandler upgrades requests to signaling sockets and feeds
// commands into the manager.
type SocketHandler struct {
	hub      *Hub
	manager  *Manager
	resolve  UserResolver
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewSocketHandler checks origins against allowedOrigins; an empty list or
// a "*" entry accepts any origin.
func NewSocketHandler(hub *Hub, manager *Manager, resolve UserResolver, allowedOrigins []string, logger *logging.Logger) *SocketHandler {
	if logger == nil {
		logger = logging.Default()
	}
	allow := map[string]bool{}
	allowAny := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allow[o] = true
	}
	return &SocketHandler{
		hub:     hub,
		manager: manager,
		resolve: resolve,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAny || origin == "" || allow[origin]
			},
		},
	}
}

func (s *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.resolve(r)
	if !ok {
		http.Error(w, "login required", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("call socket upgrade failed", "error", err, "user_id", userID)
		return
	}
	c := &client{userID: userID, send: make(chan []byte, sendBuffer)}
	s.hub.register(c)

	for _, inv := range s.manager.Pending(userID) {
		if data, err := json.Marshal(Event{Type: EventInvitation, Invitation: inv}); err == nil {
			c.offer(data)
		}
	}

	go s.writePump(c, conn)
	s.readPump(c, conn)
}

func (s *SocketHandler) readPump(c *client, conn *websocket.Conn) {
	defer func() {
		if s.hub.unregister(c) {
			s.manager.Disconnected(c.userID)
		}
		_ = conn.Close()
	}()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		if err := s.apply(c.userID, cmd); err != nil {
			reply, _ := json.Marshal(commandError{
				Type:         "error",
				Action:       cmd.Action,
				InvitationID: cmd.InvitationID,
				Error:        err.Error(),
			})
			c.offer(reply)
		}
	}
}

func (s *SocketHandler) apply(userID string, cmd Command) error {
	var err error
	switch cmd.Action {
	case "accept":
		_, err = s.manager.Accept(cmd.InvitationID, userID)
	case "reject":
		_, err = s.manager.Reject(cmd.InvitationID, userID)
	case "cancel":
		_, err = s.manager.Cancel(cmd.InvitationID, userID)
	case "end":
		_, err = s.manager.End(cmd.InvitationID, userID)
	default:
		return errUnknownAction
	}
	return err
}

func (s *SocketHandler) writePump(c *client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
