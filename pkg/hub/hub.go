// Package hub fans dashboard messages out to websocket clients.
//
// A single Run goroutine owns the client set. Slow clients are dropped
// rather than allowed to stall a broadcast.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNotRunning is returned by Broadcast before Run or after it returned.
var ErrNotRunning = errors.New("hub: not running")

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]struct{}

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex // guards count and running for outside readers
	count   int
	running bool

	done chan struct{}
}

// New creates a hub. name is used in log lines.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.setRunning(true)
	defer func() {
		h.setRunning(false)
		close(h.done)
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.setCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			h.logger.Debug("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
			h.logger.Debug("client disconnected", "clients", len(h.clients))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("dropped slow client")
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

// Broadcast queues data for every client. It never blocks: when the
// queue is full the message is dropped and false is returned.
func (h *Hub) Broadcast(data []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- data:
		return true
	default:
		h.logger.Warn("broadcast queue full, message dropped")
		return false
	}
}

// Publish wraps data in an Envelope and broadcasts it.
func (h *Hub) Publish(topic Topic, data any) error {
	if !h.IsRunning() {
		return ErrNotRunning
	}
	msg, err := NewEnvelope(topic, data)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

func (h *Hub) setRunning(v bool) {
	h.mu.Lock()
	h.running = v
	h.mu.Unlock()
}
