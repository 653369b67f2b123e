package chat

import (
	"sync"
	"time"

	"github.com/relaychat/server/src/hub"
	"github.com/relaychat/server/src/store"
	"github.com/relaychat/server/src/types"
	"github.com/rs/zerolog"
)

// Service is the protocol state machine. It validates inbound events,
// mutates the channel store and session registry, and fans notifications
// out through the hub. Handlers run one at a time inside the hub's event
// loop, so store and registry mutations are never concurrent with each
// other.
type Service struct {
	hub    *hub.Hub
	store  *store.Store
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]string // userID -> clientID, last registration wins
}

// New wires the chat protocol onto a hub. The disconnect callback keeps the
// session registry consistent before any further event is processed.
func New(h *hub.Hub, st *store.Store, logger zerolog.Logger) *Service {
	s := &Service{
		hub:      h,
		store:    st,
		logger:   logger.With().Str("component", "chat").Logger(),
		sessions: make(map[string]string),
	}

	h.RegisterHandler(types.EventRegister, s.handleRegister)
	h.RegisterHandler(types.EventCreateChannel, s.handleCreateChannel)
	h.RegisterHandler(types.EventJoinChannel, s.handleJoinChannel)
	h.RegisterHandler(types.EventLeaveChannel, s.handleLeaveChannel)
	h.RegisterHandler(types.EventSendMessage, s.handleSendMessage)
	h.RegisterHandler(types.EventKickUser, s.handleKickUser)
	h.OnDisconnection(s.handleDisconnect)

	return s
}

// Lookup resolves a registered user to its live client ID.
func (s *Service) Lookup(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clientID, ok := s.sessions[userID]
	return clientID, ok
}

// SessionCount returns the number of registered identities.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// identityOf returns the registered user attached to a client, or nil.
func (s *Service) identityOf(clientID string) *types.User {
	client, ok := s.hub.Client(clientID)
	if !ok {
		return nil
	}
	return client.Identity()
}

// handleDisconnect removes the session entry for a dropped connection,
// but only if the mapping still points at it. A connection displaced by
// re-registration must not delete the fresh entry when it finally dies.
func (s *Service) handleDisconnect(c *hub.Client) {
	user := c.Identity()
	if user == nil {
		return
	}
	s.mu.Lock()
	if clientID, ok := s.sessions[user.ID]; ok && clientID == c.ID {
		delete(s.sessions, user.ID)
	}
	s.mu.Unlock()

	s.logger.Info().Str("user_id", user.ID).Str("client_id", c.ID).Msg("session closed")
}

func outbound(channelID, event string, data map[string]any) types.Message {
	return types.Message{
		Channel:   channelID,
		Event:     event,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func errorFrame(reason string) types.Message {
	return outbound("", types.EventError, map[string]any{"message": reason})
}

func (s *Service) channelsListFrame() types.Message {
	return outbound("", types.EventChannelsList, map[string]any{
		"channels": s.store.ListChannels(),
	})
}

func (s *Service) broadcastMembers(channelID string) {
	s.hub.Publish(channelID, outbound(channelID, types.EventMemberList, map[string]any{
		"channel_id": channelID,
		"members":    s.store.Members(channelID),
	}))
}
