package chat_test

import (
	"sync"
	"testing"
	"time"

	"github.com/relaychat/server/src/chat"
	"github.com/relaychat/server/src/hub"
	"github.com/relaychat/server/src/store"
	"github.com/relaychat/server/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn for driving the protocol without a real
// WebSocket. Frames written by the server are recorded for inspection.
type mockConn struct {
	mu       sync.Mutex
	written  []types.Message
	readCh   chan types.Message
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.Message, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := v.(types.Message); ok {
		m.written = append(m.written, msg)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case msg := <-m.readCh:
		if ptr, ok := v.(*types.Message); ok {
			*ptr = msg
		}
		return nil
	case <-m.closedCh:
		return &closeError{}
	}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

// frames returns recorded frames matching the given event name.
func (m *mockConn) frames(event string) []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Message
	for _, msg := range m.written {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

type closeError struct{}

func (e *closeError) Error() string { return "connection closed" }

type testEnv struct {
	t     *testing.T
	hub   *hub.Hub
	store *store.Store
	svc   *chat.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	h := hub.New(zerolog.Nop())
	st := store.New(0)
	svc := chat.New(h, st, zerolog.Nop())
	go h.Run()
	t.Cleanup(func() { h.Stop() })
	return &testEnv{t: t, hub: h, store: st, svc: svc}
}

// connect attaches a mock client with both pumps running, so inbound frames
// pushed to the conn flow through the router and outbound frames are recorded.
func (e *testEnv) connect(clientID string) *mockConn {
	e.t.Helper()
	conn := newMockConn()
	client := hub.NewClient(clientID, conn, e.hub)
	e.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()
	time.Sleep(20 * time.Millisecond)
	return conn
}

// send pushes an inbound frame and waits for the event loop to drain.
func (e *testEnv) send(conn *mockConn, event string, data map[string]any) {
	e.t.Helper()
	conn.readCh <- types.Message{Event: event, Data: data}
	time.Sleep(50 * time.Millisecond)
}

func (e *testEnv) register(conn *mockConn, id, name string) {
	e.t.Helper()
	e.send(conn, types.EventRegister, map[string]any{"id": id, "name": name})
}

func TestRegisterRepliesWithDirectoryToSenderOnly(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	bystander := e.connect("conn-b")

	e.register(alice, "a", "Alice")

	lists := alice.frames(types.EventChannelsList)
	require.Len(t, lists, 1)
	assert.Empty(t, lists[0].Data["channels"])
	assert.Empty(t, bystander.frames(types.EventChannelsList))
}

func TestCreateChannelBroadcastsDirectoryAndMembers(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	bob := e.connect("conn-b")
	e.register(alice, "a", "Alice")
	e.register(bob, "b", "Bob")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})

	// Directory update reaches every connected client, members included.
	require.NotEmpty(t, bob.frames(types.EventChannelsList))
	last := bob.frames(types.EventChannelsList)
	channels, ok := last[len(last)-1].Data["channels"].([]types.ChannelSummary)
	require.True(t, ok)
	require.Len(t, channels, 1)
	assert.Equal(t, "general", channels[0].ID)
	assert.Equal(t, "a", channels[0].OwnerID)

	// Member list goes to the channel group: only the creator so far.
	members := alice.frames(types.EventMemberList)
	require.NotEmpty(t, members)
	got, ok := members[len(members)-1].Data["members"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, got)
	assert.Empty(t, bob.frames(types.EventMemberList))
}

func TestUnregisteredSenderIsDropped(t *testing.T) {
	e := newTestEnv(t)
	anon := e.connect("conn-anon")

	e.send(anon, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(anon, types.EventJoinChannel, map[string]any{"channel_id": "general"})
	e.send(anon, types.EventSendMessage, map[string]any{"channel_id": "general", "text": "hi"})

	assert.False(t, e.store.Exists("general"))
	anon.mu.Lock()
	assert.Empty(t, anon.written, "unauthenticated events must be dropped silently")
	anon.mu.Unlock()
}

func TestDuplicateChannelCreateReportsError(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	mallory := e.connect("conn-m")
	e.register(alice, "a", "Alice")
	e.register(mallory, "m", "Mallory")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(mallory, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "Takeover"})

	errs := mallory.frames(types.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "channel already exists", errs[0].Data["message"])

	owner, ok := e.store.OwnerID("general")
	require.True(t, ok)
	assert.Equal(t, "a", owner)
	assert.True(t, e.store.IsMember("general", "a"))
}

func TestJoinDeliversHistoryInAppendOrder(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	bob := e.connect("conn-b")
	e.register(alice, "a", "Alice")
	e.register(bob, "b", "Bob")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	for _, txt := range []string{"one", "two", "three"} {
		e.send(alice, types.EventSendMessage, map[string]any{"channel_id": "general", "text": txt})
	}

	e.send(bob, types.EventJoinChannel, map[string]any{"channel_id": "general"})

	histories := bob.frames(types.EventChannelHistory)
	require.Len(t, histories, 1)
	messages, ok := histories[0].Data["messages"].([]types.ChatMessage)
	require.True(t, ok)
	require.Len(t, messages, 3)
	for i, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, messages[i].Text)
		if i > 0 {
			assert.Greater(t, messages[i].ID, messages[i-1].ID)
		}
	}
}

// Full walkthrough: Alice creates a channel, Bob joins with empty history,
// receives Alice's message, leaves, and a kick aimed at the departed Bob is
// a silent no-op.
func TestChannelLifecycleScenario(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	bob := e.connect("conn-b")
	e.register(alice, "a", "Alice")
	e.register(bob, "b", "Bob")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(bob, types.EventJoinChannel, map[string]any{"channel_id": "general"})

	histories := bob.frames(types.EventChannelHistory)
	require.Len(t, histories, 1)
	assert.Empty(t, histories[0].Data["messages"])

	e.send(alice, types.EventSendMessage, map[string]any{"channel_id": "general", "text": "hi"})

	news := bob.frames(types.EventNewMessage)
	require.Len(t, news, 1)
	msg, ok := news[0].Data["message"].(types.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, "a", msg.Sender.ID)

	e.send(bob, types.EventLeaveChannel, map[string]any{"channel_id": "general"})
	assert.False(t, e.store.IsMember("general", "b"))

	e.send(alice, types.EventKickUser, map[string]any{"channel_id": "general", "user_id": "b"})
	assert.Empty(t, alice.frames(types.EventError), "kicking an absent user must not error")
}

func TestKickByNonOwner(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	carol := e.connect("conn-c")
	e.register(alice, "a", "Alice")
	e.register(carol, "c", "Carol")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(carol, types.EventJoinChannel, map[string]any{"channel_id": "general"})

	e.send(carol, types.EventKickUser, map[string]any{"channel_id": "general", "user_id": "a"})

	errs := carol.frames(types.EventError)
	require.Len(t, errs, 1, "exactly one error frame to the requester")
	assert.Equal(t, "only owner can kick", errs[0].Data["message"])
	assert.Empty(t, alice.frames(types.EventError))
	assert.True(t, e.store.IsMember("general", "a"), "membership must be unchanged")
	assert.True(t, e.store.IsMember("general", "c"))
}

func TestKickRemovesTargetFromBroadcastGroup(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	bob := e.connect("conn-b")
	e.register(alice, "a", "Alice")
	e.register(bob, "b", "Bob")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(bob, types.EventJoinChannel, map[string]any{"channel_id": "general"})

	e.send(alice, types.EventKickUser, map[string]any{"channel_id": "general", "user_id": "b"})

	kicked := bob.frames(types.EventKicked)
	require.Len(t, kicked, 1)
	assert.Equal(t, "general", kicked[0].Data["channel_id"])
	assert.False(t, e.store.IsMember("general", "b"))

	e.send(alice, types.EventSendMessage, map[string]any{"channel_id": "general", "text": "after kick"})

	assert.Empty(t, bob.frames(types.EventNewMessage), "kicked client must not receive later broadcasts")
	require.Len(t, alice.frames(types.EventNewMessage), 1)
}

func TestOwnerSelfKickRejected(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	e.register(alice, "a", "Alice")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(alice, types.EventKickUser, map[string]any{"channel_id": "general", "user_id": "a"})

	errs := alice.frames(types.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "owner cannot kick themselves", errs[0].Data["message"])
	assert.True(t, e.store.IsMember("general", "a"))
}

func TestSendMessageRequiresMembership(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	eve := e.connect("conn-e")
	e.register(alice, "a", "Alice")
	e.register(eve, "e", "Eve")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(eve, types.EventSendMessage, map[string]any{"channel_id": "general", "text": "drive-by"})

	assert.Empty(t, e.store.History("general"), "non-member message must not be appended")
	assert.Empty(t, alice.frames(types.EventNewMessage))
}

func TestRepeatedJoinAndLeaveAreIdempotent(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	bob := e.connect("conn-b")
	e.register(alice, "a", "Alice")
	e.register(bob, "b", "Bob")

	e.send(alice, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})

	e.send(bob, types.EventJoinChannel, map[string]any{"channel_id": "general"})
	e.send(bob, types.EventJoinChannel, map[string]any{"channel_id": "general"})
	assert.Len(t, e.store.Members("general"), 2)

	e.send(bob, types.EventLeaveChannel, map[string]any{"channel_id": "general"})
	e.send(bob, types.EventLeaveChannel, map[string]any{"channel_id": "general"})
	assert.False(t, e.store.IsMember("general", "b"))
	assert.Len(t, e.store.Members("general"), 1)
}

func TestEventsOnUnknownChannelAreSilent(t *testing.T) {
	e := newTestEnv(t)
	alice := e.connect("conn-a")
	e.register(alice, "a", "Alice")

	e.send(alice, types.EventJoinChannel, map[string]any{"channel_id": "ghost"})
	e.send(alice, types.EventLeaveChannel, map[string]any{"channel_id": "ghost"})
	e.send(alice, types.EventSendMessage, map[string]any{"channel_id": "ghost", "text": "hi"})
	e.send(alice, types.EventKickUser, map[string]any{"channel_id": "ghost", "user_id": "b"})

	assert.Empty(t, alice.frames(types.EventError))
	assert.Empty(t, alice.frames(types.EventChannelHistory))
	assert.Empty(t, alice.frames(types.EventMemberList))
}

func TestReRegistrationDisplacesPreviousConnection(t *testing.T) {
	e := newTestEnv(t)
	first := e.connect("conn-1")
	second := e.connect("conn-2")
	owner := e.connect("conn-o")
	e.register(owner, "o", "Owner")
	e.register(first, "u", "User")
	e.register(second, "u", "User")

	// The displaced connection is told explicitly.
	require.Len(t, first.frames(types.EventSessionReplaced), 1)
	assert.Empty(t, second.frames(types.EventSessionReplaced))

	clientID, ok := e.svc.Lookup("u")
	require.True(t, ok)
	assert.Equal(t, "conn-2", clientID)

	// A kick notification resolves to the fresh connection.
	e.send(owner, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	e.send(second, types.EventJoinChannel, map[string]any{"channel_id": "general"})
	e.send(owner, types.EventKickUser, map[string]any{"channel_id": "general", "user_id": "u"})

	assert.Len(t, second.frames(types.EventKicked), 1)
	assert.Empty(t, first.frames(types.EventKicked))
}

func TestIdentitySwitchAbandonsOldSession(t *testing.T) {
	e := newTestEnv(t)
	first := e.connect("conn-1")
	second := e.connect("conn-2")

	e.register(first, "u1", "One")
	e.register(first, "u2", "Two")

	// The switch abandons u1's entry.
	_, ok := e.svc.Lookup("u1")
	assert.False(t, ok)

	// Another connection claiming the abandoned id displaces nobody.
	e.register(second, "u1", "One")
	assert.Empty(t, first.frames(types.EventSessionReplaced))

	// conn-1 is still registered as u2; its events must not be dropped.
	e.send(first, types.EventCreateChannel, map[string]any{"channel_id": "general", "name": "General"})
	require.True(t, e.store.Exists("general"))
	owner, ok := e.store.OwnerID("general")
	require.True(t, ok)
	assert.Equal(t, "u2", owner)

	// u2's entry dies with conn-1.
	first.Close()
	time.Sleep(50 * time.Millisecond)
	_, ok = e.svc.Lookup("u2")
	assert.False(t, ok)

	clientID, ok := e.svc.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "conn-2", clientID)
}

func TestStaleDisconnectKeepsFreshSession(t *testing.T) {
	e := newTestEnv(t)
	first := e.connect("conn-1")
	second := e.connect("conn-2")
	e.register(first, "u", "User")
	e.register(second, "u", "User")

	// The displaced connection drops; its cleanup must not evict conn-2.
	first.Close()
	time.Sleep(50 * time.Millisecond)

	clientID, ok := e.svc.Lookup("u")
	require.True(t, ok)
	assert.Equal(t, "conn-2", clientID)
}

func TestDisconnectRemovesSession(t *testing.T) {
	e := newTestEnv(t)
	conn := e.connect("conn-1")
	e.register(conn, "u", "User")

	_, ok := e.svc.Lookup("u")
	require.True(t, ok)

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	_, ok = e.svc.Lookup("u")
	assert.False(t, ok)
	assert.Equal(t, 0, e.svc.SessionCount())
}
