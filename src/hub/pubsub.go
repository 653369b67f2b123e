package hub

import (
	"github.com/relaychat/server/src/types"
)

func (h *Hub) handleInbound(msg types.Message) {
	h.mu.RLock()
	handler, ok := h.handlers[msg.Event]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("event", msg.Event).Msg("no handler")
		return
	}
	if err := handler(msg.ClientID, msg); err != nil {
		h.logger.Error().Err(err).Str("event", msg.Event).Msg("handler error")
	}
}

// deliver fans a frame out to its broadcast group. An empty Channel means
// every connected client.
func (h *Hub) deliver(msg types.Message) {
	h.mu.RLock()
	var ids []string
	if msg.Channel == "" {
		ids = make([]string, 0, len(h.clients))
		for id := range h.clients {
			ids = append(ids, id)
		}
	} else {
		subs, ok := h.groups[msg.Channel]
		if !ok {
			h.mu.RUnlock()
			return
		}
		// Copy subscriber IDs to avoid holding the lock during sends.
		ids = make([]string, 0, len(subs))
		for id := range subs {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.mu.RLock()
		client, exists := h.clients[id]
		h.mu.RUnlock()
		if !exists {
			continue
		}
		select {
		case client.Send <- msg:
		default:
			h.logger.Warn().Str("client_id", id).Msg("send buffer full, dropping")
		}
	}
}

// publishToBridge forwards a frame to the bridge if one is attached.
func (h *Hub) publishToBridge(msg types.Message) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(msg); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Publish queues a frame for delivery to every subscriber of a channel.
// Within one channel, delivery order matches publish order.
func (h *Hub) Publish(channelID string, msg types.Message) {
	msg.Channel = channelID
	h.outbound <- msg
}

// BroadcastAll queues a frame for delivery to every connected client.
func (h *Hub) BroadcastAll(msg types.Message) {
	msg.Channel = ""
	h.outbound <- msg
}

// Subscribe adds a client to a channel's broadcast group.
func (h *Hub) Subscribe(channelID, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return false
	}
	if h.groups[channelID] == nil {
		h.groups[channelID] = make(map[string]bool)
	}
	h.groups[channelID][clientID] = true
	h.clients[clientID].AddChannel(channelID)
	return true
}

// Unsubscribe removes a client from a channel's broadcast group.
func (h *Hub) Unsubscribe(channelID, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.groups[channelID]
	if !ok {
		return false
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(h.groups, channelID)
	}
	if c, ok := h.clients[clientID]; ok {
		c.RemoveChannel(channelID)
	}
	return true
}

// SendToClient sends a frame directly to a specific client.
func (h *Hub) SendToClient(clientID string, msg types.Message) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.Send <- msg:
		return true
	default:
		return false
	}
}
