package chat

import (
	"github.com/relaychat/server/src/store"
	"github.com/relaychat/server/src/types"
)

func stringField(msg types.Message, key string) string {
	v, _ := msg.Data[key].(string)
	return v
}

// handleRegister binds a self-asserted identity to the connection and
// replies with the current channel directory. If another live connection
// already held the identity, it is displaced: told explicitly and stripped
// of its attribution, so its eventual disconnect cannot evict the fresh
// session entry.
func (s *Service) handleRegister(clientID string, msg types.Message) error {
	client, ok := s.hub.Client(clientID)
	if !ok {
		return nil
	}
	id := stringField(msg, "id")
	name := stringField(msg, "name")
	if id == "" {
		return nil
	}
	user := types.User{ID: id, Name: name}

	s.mu.Lock()
	// A connection switching identities abandons its old entry, so a later
	// claim of the old id displaces nobody and the connection's eventual
	// disconnect cannot leave the abandoned entry behind.
	if old := client.Identity(); old != nil && old.ID != id {
		if cid, ok := s.sessions[old.ID]; ok && cid == clientID {
			delete(s.sessions, old.ID)
		}
	}
	prevID, had := s.sessions[id]
	s.sessions[id] = clientID
	s.mu.Unlock()

	if had && prevID != clientID {
		if prev, ok := s.hub.Client(prevID); ok {
			// Displace only a connection that still holds the contested
			// identity; it may have re-registered as someone else since.
			if cur := prev.Identity(); cur != nil && cur.ID == id {
				prev.SetIdentity(nil)
				s.hub.SendToClient(prevID, outbound("", types.EventSessionReplaced, nil))
			}
		}
	}

	client.SetIdentity(&user)
	s.logger.Info().Str("user_id", id).Str("client_id", clientID).Msg("user registered")

	s.hub.SendToClient(clientID, s.channelsListFrame())
	return nil
}

// handleCreateChannel creates a channel with the sender as owner and first
// member. A taken channel ID fails closed and the creator is told; the
// existing channel's members and history stay intact.
func (s *Service) handleCreateChannel(clientID string, msg types.Message) error {
	user := s.identityOf(clientID)
	if user == nil {
		return nil
	}
	channelID := stringField(msg, "channel_id")
	name := stringField(msg, "name")
	if channelID == "" {
		return nil
	}

	if err := s.store.CreateChannel(channelID, name, user.ID); err != nil {
		if err == store.ErrDuplicateChannel {
			s.hub.SendToClient(clientID, errorFrame("channel already exists"))
			return nil
		}
		return err
	}

	s.hub.Subscribe(channelID, clientID)
	s.logger.Info().Str("channel_id", channelID).Str("owner_id", user.ID).Msg("channel created")

	s.hub.BroadcastAll(s.channelsListFrame())
	s.broadcastMembers(channelID)
	return nil
}

// handleJoinChannel adds the sender to the member set and broadcast group,
// then delivers the channel history to the joiner only.
func (s *Service) handleJoinChannel(clientID string, msg types.Message) error {
	user := s.identityOf(clientID)
	if user == nil {
		return nil
	}
	channelID := stringField(msg, "channel_id")
	if !s.store.AddMember(channelID, user.ID) {
		return nil
	}
	s.hub.Subscribe(channelID, clientID)

	// The member_list broadcast drains through the event loop while the
	// history reply is written directly, so the joiner may see
	// channel_history first. Both are snapshots; relative order between
	// them carries no meaning.
	s.broadcastMembers(channelID)
	s.hub.SendToClient(clientID, outbound(channelID, types.EventChannelHistory, map[string]any{
		"channel_id": channelID,
		"messages":   s.store.History(channelID),
	}))
	return nil
}

// handleLeaveChannel removes the sender from the member set and broadcast
// group. Repeated leaves are no-ops beyond the member_list broadcast.
func (s *Service) handleLeaveChannel(clientID string, msg types.Message) error {
	user := s.identityOf(clientID)
	if user == nil {
		return nil
	}
	channelID := stringField(msg, "channel_id")
	if !s.store.RemoveMember(channelID, user.ID) {
		return nil
	}
	s.hub.Unsubscribe(channelID, clientID)

	s.broadcastMembers(channelID)
	return nil
}

// handleSendMessage appends a message and broadcasts it to the channel.
// The sender must be a member; a registered non-member's message is dropped
// without touching the log.
func (s *Service) handleSendMessage(clientID string, msg types.Message) error {
	user := s.identityOf(clientID)
	if user == nil {
		return nil
	}
	channelID := stringField(msg, "channel_id")
	text := stringField(msg, "text")
	if !s.store.IsMember(channelID, user.ID) {
		return nil
	}

	stored, err := s.store.AppendMessage(channelID, *user, text)
	if err != nil {
		return nil
	}
	s.hub.Publish(channelID, outbound(channelID, types.EventNewMessage, map[string]any{
		"channel_id": channelID,
		"message":    stored,
	}))
	return nil
}

// handleKickUser evicts a member on the owner's authority. Non-owners and
// owners targeting themselves get exactly one error frame; kicking a user
// who is not a member stays a silent no-op apart from the member_list
// broadcast. A resolvable target is force-unsubscribed and notified.
func (s *Service) handleKickUser(clientID string, msg types.Message) error {
	requester := s.identityOf(clientID)
	if requester == nil {
		return nil
	}
	channelID := stringField(msg, "channel_id")
	targetID := stringField(msg, "user_id")

	ownerID, ok := s.store.OwnerID(channelID)
	if !ok {
		return nil
	}
	if ownerID != requester.ID {
		s.hub.SendToClient(clientID, errorFrame("only owner can kick"))
		return nil
	}
	if targetID == requester.ID {
		s.hub.SendToClient(clientID, errorFrame("owner cannot kick themselves"))
		return nil
	}

	s.store.RemoveMember(channelID, targetID)

	if targetClientID, ok := s.Lookup(targetID); ok {
		s.hub.Unsubscribe(channelID, targetClientID)
		s.hub.SendToClient(targetClientID, outbound(channelID, types.EventKicked, map[string]any{
			"channel_id": channelID,
		}))
	}
	s.logger.Info().
		Str("channel_id", channelID).
		Str("user_id", targetID).
		Str("by", requester.ID).
		Msg("user kicked")

	s.broadcastMembers(channelID)
	return nil
}
