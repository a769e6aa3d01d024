package websocket

import (
	"context"
	"sync"
	"time"

	"tapedeck/types"

	"go.uber.org/zap"
)

// AllProjects is the topic that receives events for every project
const AllProjects = "all"

// Hub interface defines the methods for managing WebSocket connections
type Hub interface {
	Run(ctx context.Context)
	Publish(event types.ProjectEvent)
	RegisterClient(client *Client)
	UnregisterClient(client *Client)
	ClientCount() int
}

// hub maintains the set of active clients and fans events out to them
type hub struct {
	// Registered clients mapped by topic (project name or AllProjects)
	clients map[string]map[*Client]bool

	broadcast  chan types.ProjectEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan types.ProjectEvent, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main event loop and returns when ctx is cancelled
func (h *hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.topic] == nil {
				h.clients[client.topic] = make(map[*Client]bool)
			}
			h.clients[client.topic][client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.String("topic", client.topic))

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.String("topic", client.topic))

		case event := <-h.broadcast:
			h.mu.Lock()
			h.deliver(event.Project, event)
			h.deliver(AllProjects, event)
			h.mu.Unlock()
		}
	}
}

// deliver sends event to every client of topic, dropping clients that cannot keep up
func (h *hub) deliver(topic string, event types.ProjectEvent) {
	clients, ok := h.clients[topic]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- event:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("topic", topic))
			close(client.send)
			delete(clients, client)
		}
	}
	if len(clients) == 0 {
		delete(h.clients, topic)
	}
}

func (h *hub) remove(client *Client) {
	if clients, ok := h.clients[client.topic]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
			if len(clients) == 0 {
				delete(h.clients, client.topic)
			}
		}
	}
}

func (h *hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
		delete(h.clients, topic)
	}
}

// Publish queues an event for the project's subscribers and the all topic
func (h *hub) Publish(event types.ProjectEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		h.logger.Warn("websocket broadcast channel full, dropping event",
			zap.String("project", event.Project),
			zap.String("type", string(event.Type)))
	}
}

// RegisterClient registers a new client with the hub
func (h *hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// UnregisterClient unregisters a client from the hub
func (h *hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients across all topics
func (h *hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}
