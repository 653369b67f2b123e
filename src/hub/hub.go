package hub

import (
	"sync"

	"github.com/relaychat/server/src/types"
	"github.com/rs/zerolog"
)

// MessageBridge publishes outbound frames to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(msg types.Message) error
	Available() bool
}

// Hub tracks all live WebSocket connections and their broadcast-group
// subscriptions. All inbound events funnel through its single event loop,
// so protocol handlers never run concurrently with each other.
type Hub struct {
	clients map[string]*Client
	groups  map[string]map[string]bool // channelID -> set of clientIDs

	register   chan *Client
	unregister chan *Client
	incoming   chan types.Message
	outbound   chan types.Message
	localCast  chan types.Message // frames from the bridge, no re-publish

	handlers  map[string]types.MessageHandler // keyed by inbound event name
	onConnect []func(*Client)
	onDisconn []func(*Client)

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan types.Message, 256),
		outbound:   make(chan types.Message, 256),
		localCast:  make(chan types.Message, 256),
		handlers:   make(map[string]types.MessageHandler),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, broadcast frames are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a frame from the bridge to local subscribers only.
// It does not re-publish to Redis, preventing infinite loops.
func (h *Hub) BroadcastToLocal(msg types.Message) {
	h.localCast <- msg
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.incoming:
			h.handleInbound(msg)
		case msg := <-h.outbound:
			h.publishToBridge(msg)
			h.deliver(msg)
		case msg := <-h.localCast:
			h.deliver(msg)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister queues a client for removal. Its disconnect callbacks run
// inside the event loop, before any further event is processed.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Msg("client connected")

	for _, cb := range h.onConnect {
		cb(c)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	// Drop the client from every broadcast group.
	for id, subs := range h.groups {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.groups, id)
		}
	}
	h.mu.Unlock()

	// Callbacks see the client's identity before it is torn down.
	for _, cb := range h.onDisconn {
		cb(c)
	}

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Msg("client disconnected")
}
