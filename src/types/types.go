package types

import "time"

// Message is a single WebSocket frame. Inbound frames are routed by Event;
// on outbound frames Channel tags the broadcast group the frame belongs to.
type Message struct {
	Channel   string         `json:"channel,omitempty"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Inbound event names (client -> server).
const (
	EventRegister      = "register"
	EventCreateChannel = "create_channel"
	EventJoinChannel   = "join_channel"
	EventLeaveChannel  = "leave_channel"
	EventSendMessage   = "send_message"
	EventKickUser      = "kick_user"
)

// Outbound event names (server -> client).
const (
	EventChannelsList    = "channels_list"
	EventMemberList      = "member_list"
	EventChannelHistory  = "channel_history"
	EventNewMessage      = "new_message"
	EventKicked          = "kicked"
	EventError           = "error"
	EventSessionReplaced = "session_replaced"
)

// MessageHandler handles an inbound event from a client.
type MessageHandler func(clientID string, msg Message) error

// User is a self-asserted chat identity. It is not authenticated.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChannelSummary is the directory view of a channel.
type ChannelSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

// ChatMessage is one entry in a channel's append-only history.
type ChatMessage struct {
	ID     int64     `json:"id"`
	Sender User      `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// ClientInfo holds metadata about a connected client.
type ClientInfo struct {
	ID          string    `json:"id"`
	User        *User     `json:"user,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	Channels    []string  `json:"channels"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
