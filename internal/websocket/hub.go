package chatws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"

	"github.com/saeid-a/MedLinkBack/internal/services"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Envelope is one frame sent to a stream client.
type Envelope struct {
	Type      string             `json:"type"`
	RequestID string             `json:"request_id,omitempty"`
	Update    *services.Update   `json:"update,omitempty"`
	Snapshot  *services.Snapshot `json:"snapshot,omitempty"`
	Data      any                `json:"data,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp string             `json:"timestamp"`
}

type outbound struct {
	userID   string
	envelope *Envelope
}

// Hub tracks the stream clients of every user and fans session updates
// out to them. All bookkeeping happens on the Run goroutine; once Run
// returns, every method is a no-op.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	disconnect chan string
	broadcast  chan outbound
	count      chan chan int
	done       chan struct{}
	logger     *slog.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		disconnect: make(chan string),
		broadcast:  make(chan outbound, 64),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		logger:     logger.With("component", "stream_hub"),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID := range h.clients {
				h.drop(userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.close()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case userID := <-h.disconnect:
			h.drop(userID)
		case message := <-h.broadcast:
			h.deliver(message)
		case reply := <-h.count:
			total := 0
			for _, set := range h.clients {
				total += len(set)
			}
			reply <- total
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Disconnect closes every client of userID.
func (h *Hub) Disconnect(userID string) {
	select {
	case h.disconnect <- userID:
	case <-h.done:
	}
}

// Broadcast sends envelope to every client of userID.
func (h *Hub) Broadcast(userID string, envelope *Envelope) {
	select {
	case h.broadcast <- outbound{userID: userID, envelope: envelope}:
	case <-h.done:
	}
}

// Follow forwards every update of session to the stream clients of its
// user. The listener goes away when the session closes.
func (h *Hub) Follow(session *services.Session) {
	userID := session.UserID()
	session.Listen(func(update services.Update) {
		h.Broadcast(userID, &Envelope{Type: "update", Update: &update})
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0
	}
	return <-reply
}

func (h *Hub) drop(userID string) {
	for client := range h.clients[userID] {
		client.close()
	}
	delete(h.clients, userID)
}

func (h *Hub) deliver(message outbound) {
	encoded, err := encodeEnvelope(message.envelope)
	if err != nil {
		h.logger.Error("stream encode envelope", "error", err)
		return
	}

	set, ok := h.clients[message.userID]
	if !ok {
		return
	}
	for client := range set {
		if !client.enqueue(encoded) {
			delete(set, client)
			client.close()
		}
	}
	if len(set) == 0 {
		delete(h.clients, message.userID)
	}
}

func encodeEnvelope(envelope *Envelope) ([]byte, error) {
	if envelope.Timestamp == "" {
		envelope.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(envelope)
}

// Push sends envelope to this client only. A client whose buffer is full
// is disconnected.
func (c *Client) Push(envelope *Envelope) {
	encoded, err := encodeEnvelope(envelope)
	if err != nil {
		c.hub.logger.Error("stream encode envelope", "error", err)
		return
	}
	if !c.enqueue(encoded) {
		go c.hub.Unregister(c)
	}
}

func (c *Client) PushSnapshot(snapshot services.Snapshot) {
	c.Push(&Envelope{Type: "snapshot", Snapshot: &snapshot})
}

func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump applies client intents to session until the connection closes.
func (c *Client) ReadPump(session *services.Session) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming Intent
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.Push(&Envelope{Type: "error", Error: "invalid message payload"})
			continue
		}
		c.Push(dispatch(session, incoming))
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
