package server

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/tabula/pipeline"
)

// Hub tracks websocket clients and fans pipeline events out to them.
type Hub struct {
	ctx        context.Context
	logger     *zap.SugaredLogger
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a Hub bound to ctx. Call Run to start it.
func NewHub(ctx context.Context, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		ctx:        ctx,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registrations until the context ends, then closes every
// client.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("Progress client connected", "client_id", client.id, "clients", count)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("Progress client disconnected", "client_id", client.id, "clients", count)
		}
	}
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Observe broadcasts a pipeline event. It never blocks the run.
func (h *Hub) Observe(e pipeline.Event) {
	h.broadcastMessage(e)
}

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
// Sends happen under the read lock so a client is never closed mid-send.
func (h *Hub) broadcastMessage(msg interface{}) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		select {
		case client.send <- msg:
			sent++
		default:
			// slow client, drop
		}
	}
	return sent
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}
