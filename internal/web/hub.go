package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clipforge/internal/models"
	"clipforge/pkg/logger"
)

// Client represents a WebSocket client connection
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *JobHub
	mu     sync.Mutex
	closed bool
}

// JobHub manages WebSocket connections and broadcasts job updates
type JobHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.TrackedJob
	mu         sync.RWMutex
}

// NewJobHub creates a new job update hub
func NewJobHub() *JobHub {
	return &JobHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan models.TrackedJob, 1000),
	}
}

// Run starts the hub's event loop
func (h *JobHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case job := <-h.broadcast:
			h.broadcastJob(job)
		}
	}
}

// registerClient adds a new client to the hub
func (h *JobHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	logger.Log.Info("job stream client connected",
		zap.String("client_id", client.ID),
		zap.Int("total", len(h.clients)))

	// Start the client's write pump
	go client.writePump()
}

// unregisterClient removes a client from the hub
func (h *JobHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		logger.Log.Info("job stream client disconnected",
			zap.String("client_id", client.ID),
			zap.Int("total", len(h.clients)))
	}
}

// broadcastJob sends a job update to all connected clients
func (h *JobHub) broadcastJob(job models.TrackedJob) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(map[string]interface{}{
		"type": "job_update",
		"job":  job,
		"time": time.Now().Unix(),
	})
	if err != nil {
		logger.Log.Warn("failed to marshal job update", zap.Error(err))
		return
	}

	sentCount := 0
	for _, client := range h.clients {
		select {
		case client.Send <- data:
			sentCount++
		default:
			// Client send buffer full, skip
			logger.Log.Warn("job stream client send buffer full", zap.String("client_id", client.ID))
		}
	}

	logger.Log.Debug("broadcast job update",
		zap.String("job_id", job.ID),
		zap.Int("clients", sentCount))
}

// Broadcast queues a job update for delivery to all connected clients.
// It never blocks the caller; updates are dropped when the hub is saturated.
func (h *JobHub) Broadcast(job models.TrackedJob) {
	select {
	case h.broadcast <- job:
	default:
		logger.Log.Warn("job stream broadcast channel full, dropping update", zap.String("job_id", job.ID))
	}
}

// GetClientCount returns the number of connected clients
func (h *JobHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				// Hub closed the channel
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Log.Warn("job stream write failed",
					zap.String("client_id", c.ID), zap.Error(err))
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			// Send ping
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Warn("job stream ping failed",
					zap.String("client_id", c.ID), zap.Error(err))
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.Conn.Close()
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("job stream unexpected close",
					zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}
	}
}
