package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/events"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

var errHubStopped = errors.New("change feed hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// feedMessage is one change as sent to staff and to every other role.
// summary names only the resource; it is nil when the change could not be
// decoded, and such changes reach staff only.
type feedMessage struct {
	full    []byte
	summary []byte
}

// Hub fans committed changes out to every connected change feed client.
// Admins and managers receive the full change; other roles learn only which
// resource changed. It implements events.Publisher.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan feedMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zerolog.Logger
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan feedMessage, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop; call it once. It returns when ctx is canceled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).Str("sub", client.subject).Str("role", client.role).
				Int("total_clients", total).Msg("change feed client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).
				Int("total_clients", total).Msg("change feed client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				message := msg.full
				if !client.staff() {
					if message = msg.summary; message == nil {
						continue
					}
				}
				select {
				case client.send <- message:
				default:
					// Slow consumer.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client. It blocks until Run accepts it or ctx ends.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish queues the change carried by event for broadcast. A full queue
// drops the message.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	msg := feedMessage{full: []byte(event.Data)}
	if change, err := events.DecodeChange(event); err != nil {
		h.logger.Warn().Err(err).Str("type", event.Type).Msg("change withheld from non-staff clients")
	} else if msg.summary, err = json.Marshal(types.Change{Resource: change.Resource, At: change.At}); err != nil {
		h.logger.Warn().Err(err).Str("type", event.Type).Msg("change withheld from non-staff clients")
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn().Str("type", event.Type).Msg("broadcast channel full, change dropped")
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one change feed connection.
type Client struct {
	id      string
	subject string
	role    string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
}

// NewClient creates a client bound to conn for a subscriber with role.
func NewClient(id, subject, role string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:      id,
		subject: subject,
		role:    role,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
}

func (c *Client) staff() bool {
	return c.role == types.RoleAdmin || c.role == types.RoleManager
}

// ReadPump drains the peer until it disconnects. Only control frames are
// expected.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client_id", c.id).Msg("change feed read error")
			}
			return
		}
	}
}

// WritePump writes queued changes and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleChanges upgrades to a websocket streaming types.Change messages.
// Roles other than admin and manager receive only the resource name.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context()).With().Str("handler", "Changes").Logger()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	client := NewClient(uuid.NewString(), claims.Subject, claims.Role, s.hub, conn)
	if err := s.hub.Register(r.Context(), client); err != nil {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
