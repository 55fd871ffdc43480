package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"salesflow/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event names pushed to connected clients
const (
	EventSaleCreated       = "sale.created"
	EventSaleUpdated       = "sale.updated"
	EventSaleStatusChanged = "sale.status_changed"
	EventSaleSigned        = "sale.signed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Publisher delivers events to every client of one company
type Publisher interface {
	Publish(companyID uuid.UUID, event string, data interface{})
}

// Message is the JSON frame written to clients
type Message struct {
	Event  string      `json:"event"`
	Data   interface{} `json:"data"`
	SentAt time.Time   `json:"sent_at"`
}

// Client represents a single connected WebSocket client
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	companyID uuid.UUID
	send      chan []byte
}

type envelope struct {
	companyID uuid.UUID
	payload   []byte
}

// Hub keeps connected clients grouped by company and fans out messages to one company at a time
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan envelope, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows requests without an Origin header and those from the listed origins.
// An empty list allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run is the dispatch loop; it returns after Stop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			group := h.clients[client.companyID]
			if group == nil {
				group = make(map[*Client]bool)
				h.clients[client.companyID] = group
			}
			group[client] = true
			h.logger.Debug("websocket client connected", zap.String("company_id", client.companyID.String()))
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			for client := range h.clients[msg.companyID] {
				select {
				case client.send <- msg.payload:
				default:
					h.remove(client)
				}
			}
		case <-h.done:
			for _, group := range h.clients {
				for client := range group {
					close(client.send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]bool)
			return
		}
	}
}

// Stop terminates Run and disconnects every client
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) remove(client *Client) {
	group, ok := h.clients[client.companyID]
	if !ok || !group[client] {
		return
	}
	delete(group, client)
	close(client.send)
	if len(group) == 0 {
		delete(h.clients, client.companyID)
	}
	h.logger.Debug("websocket client disconnected", zap.String("company_id", client.companyID.String()))
}

// Publish queues an event for the company's clients. It never blocks the caller;
// events are dropped when the hub is saturated or stopped.
func (h *Hub) Publish(companyID uuid.UUID, event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data, SentAt: time.Now().UTC()})
	if err != nil {
		h.logger.Error("websocket event encoding failed", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case <-h.done:
	case h.broadcast <- envelope{companyID: companyID, payload: payload}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping event", zap.String("event", event))
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
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

// readPump keeps the connection alive and detects disconnects; client messages are ignored
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// ServeWs authenticates the ?token= query parameter and subscribes the connection
// to its company's events
func (h *Hub) ServeWs(auth *middleware.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		id, err := auth.Parse(tokenString)
		if err != nil {
			h.logger.Info("websocket connection rejected", zap.Error(err))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{hub: h, conn: conn, companyID: id.CompanyID, send: make(chan []byte, sendBuffer)}

		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
