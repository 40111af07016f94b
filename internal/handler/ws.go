package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"epic-engine/internal/messaging"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second
	// Send pings to the client with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from the client.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: check Origin against the configured CORS origins
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one WebSocket subscription to a story's progress stream.
type Client struct {
	storyID uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
}

// Hub tracks which WebSocket clients watch which story and fans progress
// events out to them. Events come from the RabbitMQ progress exchange, so
// every server instance sees every event regardless of which worker
// committed the chapter.
type Hub struct {
	subscribers map[uuid.UUID]map[*Client]struct{}
	register    chan *Client
	unregister  chan *Client
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewHub creates the hub and starts its management loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		subscribers: make(map[uuid.UUID]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger.Named("ProgressHub"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.subscribers[client.storyID]
			if !ok {
				set = make(map[*Client]struct{})
				h.subscribers[client.storyID] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Info("Client subscribed", zap.String("storyID", client.storyID.String()))

		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.subscribers[client.storyID]; ok {
				if _, subscribed := set[client]; subscribed {
					delete(set, client)
					close(client.send)
					if len(set) == 0 {
						delete(h.subscribers, client.storyID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// RegisterClient subscribes a client to its story's stream.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient removes a client. Safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Broadcast queues a message for every client watching the story. Clients
// whose send queue is full are skipped; progress is advisory and the
// authoritative cursor is always available over HTTP.
func (h *Hub) Broadcast(storyID uuid.UUID, message []byte) int {
	h.mu.RLock()
	set := h.subscribers[storyID]
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		select {
		case client.send <- message:
			delivered++
		default:
			h.logger.Warn("Client send queue full, dropping event",
				zap.String("storyID", storyID.String()))
		}
	}
	return delivered
}

// BroadcastProgress routes one progress event to the story's subscribers.
// Wired as the handle func of messaging.ProgressConsumer.
func (h *Hub) BroadcastProgress(event messaging.ProgressEventPayload) {
	storyID, err := uuid.Parse(event.StoryID)
	if err != nil {
		h.logger.Warn("Progress event with invalid story ID",
			zap.String("storyID", event.StoryID), zap.Error(err))
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal progress event", zap.Error(err))
		return
	}

	n := h.Broadcast(storyID, payload)
	h.logger.Debug("Progress event broadcast",
		zap.String("storyID", event.StoryID),
		zap.String("eventType", string(event.EventType)),
		zap.Int("clients", n))
}

// serveStoryProgressWS upgrades a request to a WebSocket subscription on
// one story's progress stream.
func (h *EpicHandler) serveStoryProgressWS(c *gin.Context) {
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid story ID format"})
		return
	}

	// Reject unknown stories before upgrading, it is the last chance to
	// answer with a plain HTTP status.
	if _, err := h.engine.GetStory(c.Request.Context(), storyID); err != nil {
		handleServiceError(c, err, h.logger)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.String("storyID", storyID.String()), zap.Error(err))
		return
	}

	h.logger.Info("WebSocket connection established", zap.String("storyID", storyID.String()))

	client := &Client{
		storyID: storyID,
		conn:    conn,
		send:    make(chan []byte, 256),
	}
	h.hub.RegisterClient(client)

	clientLogger := h.logger.With(zap.String("storyID", storyID.String()))
	go client.writePump(h.hub, clientLogger)
	go client.readPump(h.hub, clientLogger)
}

// readPump drains messages from the WebSocket connection. Clients are not
// expected to send anything; the pump exists to notice disconnects and to
// answer pings.
func (c *Client) readPump(hub *Hub, logger *zap.Logger) {
	defer func() {
		hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			} else {
				logger.Info("WebSocket connection closed")
			}
			break
		}
		logger.Warn("Received unexpected message from client (ignored)",
			zap.Int("size", len(message)))
	}
}

// writePump moves messages from the send channel into the WebSocket
// connection and keeps the connection alive with pings.
func (c *Client) writePump(hub *Hub, logger *zap.Logger) {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				logger.Error("Failed to get next writer", zap.Error(err))
				return
			}
			if _, err := w.Write(message); err != nil {
				logger.Error("Failed to write message", zap.Error(err))
				_ = w.Close()
				return
			}

			// Flush everything queued behind this message in one frame batch.
			n := len(c.send)
			for i := 0; i < n; i++ {
				queued := <-c.send
				if _, err := w.Write([]byte("\n")); err != nil {
					logger.Error("Failed to write separator", zap.Error(err))
					_ = w.Close()
					return
				}
				if _, err := w.Write(queued); err != nil {
					logger.Error("Failed to write queued message", zap.Error(err))
					_ = w.Close()
					return
				}
			}

			if err := w.Close(); err != nil {
				logger.Error("Failed to close writer", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}
