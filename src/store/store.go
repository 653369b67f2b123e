package store

import (
	"errors"
	"sync"
	"time"

	"github.com/relaychat/server/src/types"
)

var (
	// ErrDuplicateChannel is returned when a channel ID is already taken.
	// Creation fails closed; existing members and history are never clobbered.
	ErrDuplicateChannel = errors.New("channel already exists")

	// ErrChannelNotFound is returned for operations on unknown channels.
	ErrChannelNotFound = errors.New("channel not found")
)

// DefaultMaxHistory bounds per-channel history when no cap is configured.
const DefaultMaxHistory = 500

type channel struct {
	id       string
	name     string
	ownerID  string
	members  map[string]bool
	messages []types.ChatMessage
}

// Store owns every channel record: metadata, member sets, and message logs.
// Channels live for the process lifetime and are never destroyed, even when
// their membership drains to empty.
type Store struct {
	mu         sync.RWMutex
	channels   map[string]*channel
	order      []string // channel IDs in creation order
	nextMsgID  int64
	maxHistory int
}

// New creates an empty store. maxHistory <= 0 selects DefaultMaxHistory.
func New(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		channels:   make(map[string]*channel),
		nextMsgID:  1,
		maxHistory: maxHistory,
	}
}

// CreateChannel creates a channel with the creator as owner and sole member.
func (s *Store) CreateChannel(id, name, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.channels[id]; ok {
		return ErrDuplicateChannel
	}
	s.channels[id] = &channel{
		id:      id,
		name:    name,
		ownerID: ownerID,
		members: map[string]bool{ownerID: true},
	}
	s.order = append(s.order, id)
	return nil
}

// ListChannels returns a directory snapshot in creation order.
func (s *Store) ListChannels() []types.ChannelSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ChannelSummary, 0, len(s.order))
	for _, id := range s.order {
		ch := s.channels[id]
		out = append(out, types.ChannelSummary{ID: ch.id, Name: ch.name, OwnerID: ch.ownerID})
	}
	return out
}

// Exists reports whether a channel exists.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[id]
	return ok
}

// OwnerID returns the immutable owner of a channel.
func (s *Store) OwnerID(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return "", false
	}
	return ch.ownerID, true
}

// IsMember reports whether a user is in a channel's member set.
func (s *Store) IsMember(id, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ok && ch.members[userID]
}

// AddMember inserts a user into a channel's member set. Idempotent.
// Returns false if the channel does not exist.
func (s *Store) AddMember(id, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return false
	}
	ch.members[userID] = true
	return true
}

// RemoveMember removes a user from a channel's member set. Idempotent;
// the channel survives even when membership becomes empty.
func (s *Store) RemoveMember(id, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return false
	}
	delete(ch.members, userID)
	return true
}

// Members returns a snapshot of a channel's member set. Order unspecified.
func (s *Store) Members(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ch.members))
	for userID := range ch.members {
		out = append(out, userID)
	}
	return out
}

// AppendMessage appends a message with a store-assigned monotonic ID and
// timestamp. History is trimmed to the configured cap, oldest first.
func (s *Store) AppendMessage(id string, sender types.User, text string) (types.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[id]
	if !ok {
		return types.ChatMessage{}, ErrChannelNotFound
	}
	msg := types.ChatMessage{
		ID:     s.nextMsgID,
		Sender: sender,
		Text:   text,
		SentAt: time.Now(),
	}
	s.nextMsgID++

	ch.messages = append(ch.messages, msg)
	if len(ch.messages) > s.maxHistory {
		ch.messages = ch.messages[len(ch.messages)-s.maxHistory:]
	}
	return msg, nil
}

// History returns a copy of a channel's message log in append order.
func (s *Store) History(id string) []types.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil
	}
	out := make([]types.ChatMessage, len(ch.messages))
	copy(out, ch.messages)
	return out
}

// ChannelCount returns the number of channels.
func (s *Store) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels)
}
