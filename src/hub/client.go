package hub

import (
	"sync"
	"time"

	"github.com/relaychat/server/src/types"
)

// Client wraps one WebSocket connection. It carries the transient identity
// attached by a register event; the identity lives and dies with the
// connection, never with the session registry.
type Client struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	Send        chan types.Message
	connectedAt time.Time

	mu       sync.RWMutex
	identity *types.User
	channels map[string]bool
	done     chan struct{}
	closed   bool
}

// NewClient creates a new WebSocket client wrapper.
func NewClient(id string, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Message, 256),
		connectedAt: time.Now(),
		channels:    make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// SetIdentity attaches a registered user to this connection.
// Passing nil clears the attribution.
func (c *Client) SetIdentity(u *types.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u == nil {
		c.identity = nil
		return
	}
	cp := *u
	c.identity = &cp
}

// Identity returns the attached user, or nil before registration.
func (c *Client) Identity() *types.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return nil
	}
	cp := *c.identity
	return &cp
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	info := types.ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
		Channels:    channels,
	}
	if c.identity != nil {
		cp := *c.identity
		info.User = &cp
	}
	return info
}

// AddChannel records a broadcast-group subscription.
func (c *Client) AddChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

// RemoveChannel drops a broadcast-group subscription.
func (c *Client) RemoveChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// ReadPump reads frames from the WebSocket and routes them to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		var msg types.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		msg.ClientID = c.ID
		msg.Timestamp = time.Now()
		c.hub.incoming <- msg
	}
}

// WritePump writes frames from the send queue to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
