package server

import (
	"path/filepath"
	"testing"

	"github.com/pivogram/pivogram/internal/config"
	"github.com/pivogram/pivogram/internal/stats"
	"github.com/pivogram/pivogram/internal/store"
	"github.com/pivogram/pivogram/internal/testutil"
	"github.com/pivogram/pivogram/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a ChatServer backed by a throwaway sqlite file. The
// test goroutine drives handlers directly instead of going through Run, so
// the single-owner rule still holds.
func newTestServer(t *testing.T) *ChatServer {
	t.Helper()

	repo, err := store.NewSqliteChatRepository(filepath.Join(t.TempDir(), "chat.db"), config.DefaultMaxHistory)
	require.NoError(t, err, "failed to create repository")

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything)
	su.On("Decr", mock.Anything)

	cs, err := NewChatServer(testutil.TestLogger(t), repo, su)
	require.NoError(t, err, "failed to create chat server")
	return cs
}

func newTestClient(t *testing.T, cs *ChatServer, id, username, role string) *Client {
	t.Helper()
	return NewClient(id, types.Identity{Id: 1, Username: username, Role: role}, "", nil, cs, testutil.TestLogger(t))
}

// joinTestClient connects a client, registers presence and joins a room.
func joinTestClient(t *testing.T, cs *ChatServer, id, username, roomId string) *Client {
	t.Helper()

	c := newTestClient(t, cs, id, username, "user")
	cs.handleConnect(c)
	cs.handleUserJoin(c)
	cs.handleJoinRoom(c, roomId)
	drainEvents(c)
	return c
}

func drainEvents(c *Client) []*ServerEvent {
	var evs []*ServerEvent
	for {
		select {
		case ev := <-c.send:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func eventsNamed(evs []*ServerEvent, name string) []*ServerEvent {
	var matched []*ServerEvent
	for _, ev := range evs {
		if ev.Name == name {
			matched = append(matched, ev)
		}
	}
	return matched
}

func TestHandleUserJoin(t *testing.T) {
	cs := newTestServer(t)

	c := newTestClient(t, cs, "conn-1", "alice", "user")
	cs.handleConnect(c)
	cs.handleUserJoin(c)

	evs := eventsNamed(drainEvents(c), eventUsersUpdate)
	require.NotEmpty(t, evs, "expected a users-update after join")

	snapshot, ok := evs[len(evs)-1].Data.([]types.PresenceEntry)
	require.True(t, ok, "users-update should carry a presence snapshot")
	require.Len(t, snapshot, 1)
	assert.Equal(t, "alice", snapshot[0].Username)
	assert.True(t, snapshot[0].Online)
}

func TestHandleUserJoin_PendingInvite(t *testing.T) {
	cs := newTestServer(t)

	c := newTestClient(t, cs, "conn-1", "alice", "user")
	c.inviteRoom = "book-club"
	cs.handleConnect(c)
	cs.handleUserJoin(c)

	joined := eventsNamed(drainEvents(c), eventRoomJoined)
	require.Len(t, joined, 1, "invite should be honored immediately")
	assert.Equal(t, "book-club", joined[0].Data)
	assert.True(t, cs.rooms.exists("book-club"))
}

func TestHandleJoinRoom(t *testing.T) {
	cs := newTestServer(t)
	c := joinTestClient(t, cs, "conn-1", "alice", DefaultRoom)

	cs.handleJoinRoom(c, "random")

	evs := drainEvents(c)
	joined := eventsNamed(evs, eventRoomJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "random", joined[0].Data)

	entry, ok := cs.presence.entry(c)
	require.True(t, ok)
	assert.Equal(t, "random", entry.currentRoom, "presence should track the current room")

	groups := eventsNamed(evs, eventGroupsUpdate)
	require.NotEmpty(t, groups, "room change should refresh the group list")

	assert.Empty(t, eventsNamed(evs, eventNewMessage), "a brand-new room has no backlog to replay")
	assert.Len(t, cs.rooms.members("random"), 1, "fresh room should hold only the joiner")
}

func TestHandleJoinRoom_ReplaysHistory(t *testing.T) {
	cs := newTestServer(t)
	sender := joinTestClient(t, cs, "conn-1", "alice", "random")

	cs.handleSendMessage(sender, sendMessagePayload{RoomId: "random", Message: "first"})
	cs.handleSendMessage(sender, sendMessagePayload{RoomId: "random", Message: "second"})

	joiner := newTestClient(t, cs, "conn-2", "bob", "user")
	cs.handleConnect(joiner)
	cs.handleUserJoin(joiner)
	cs.handleJoinRoom(joiner, "random")

	replayed := eventsNamed(drainEvents(joiner), eventNewMessage)
	require.Len(t, replayed, 2, "joiner should receive the room backlog")
	assert.Equal(t, "first", replayed[0].Data.(types.Message).Body)
	assert.Equal(t, "second", replayed[1].Data.(types.Message).Body)
}

func TestHandleCreateGroup(t *testing.T) {
	cs := newTestServer(t)
	c := joinTestClient(t, cs, "conn-1", "alice", DefaultRoom)
	other := joinTestClient(t, cs, "conn-2", "bob", DefaultRoom)

	cs.handleCreateGroup(c, "book-club")

	entry, ok := cs.presence.entry(c)
	require.True(t, ok)
	assert.Equal(t, DefaultRoom, entry.currentRoom, "creating must not switch the current room")

	cs.handleGetGroups(c)
	groups := eventsNamed(drainEvents(c), eventGroupsUpdate)
	require.NotEmpty(t, groups)
	ids := make([]string, 0)
	for _, g := range groups[len(groups)-1].Data.([]types.GroupInfo) {
		ids = append(ids, g.Id)
	}
	assert.Contains(t, ids, "book-club", "creator should be a member of the new room")

	cs.handleGetGroups(other)
	otherGroups := eventsNamed(drainEvents(other), eventGroupsUpdate)
	require.NotEmpty(t, otherGroups)
	for _, g := range otherGroups[len(otherGroups)-1].Data.([]types.GroupInfo) {
		assert.NotEqual(t, "book-club", g.Id, "non-members should not see the room")
	}
}

func TestHandleDisconnect(t *testing.T) {
	cs := newTestServer(t)
	c := joinTestClient(t, cs, "conn-1", "alice", "random")
	watcher := joinTestClient(t, cs, "conn-2", "bob", DefaultRoom)

	cs.handleDisconnect(c)

	_, ok := cs.clients[c.id]
	assert.False(t, ok, "client should be removed from the connection table")
	assert.False(t, cs.rooms.exists("random"), "emptied room should be disbanded")

	entry, ok := cs.presence.entry(c)
	require.True(t, ok, "presence entry should linger through the grace window")
	assert.False(t, entry.online)

	evs := eventsNamed(drainEvents(watcher), eventUsersUpdate)
	require.NotEmpty(t, evs)
	snapshot := evs[len(evs)-1].Data.([]types.PresenceEntry)
	for _, p := range snapshot {
		if p.Username == "alice" {
			assert.False(t, p.Online, "departed user should be shown offline, not gone")
		}
	}
}

func TestHandlePresenceExpiry(t *testing.T) {
	cs := newTestServer(t)
	c := joinTestClient(t, cs, "conn-1", "alice", DefaultRoom)

	cs.handleDisconnect(c)
	cs.handlePresenceExpiry(c)

	_, ok := cs.presence.entry(c)
	assert.False(t, ok, "expired entry should be dropped")
}

func TestHandlePresenceExpiry_ReconnectKeepsEntry(t *testing.T) {
	cs := newTestServer(t)
	c := joinTestClient(t, cs, "conn-1", "alice", DefaultRoom)

	cs.handleDisconnect(c)
	cs.handleConnect(c)
	cs.handleUserJoin(c)
	cs.handlePresenceExpiry(c)

	entry, ok := cs.presence.entry(c)
	require.True(t, ok, "re-registered entry must survive the stale expiry")
	assert.True(t, entry.online)
}

func TestHandleAdminNotification(t *testing.T) {
	cs := newTestServer(t)

	admin := NewClient("conn-1", types.Identity{Id: 1, Username: "admin", Role: "admin"}, "", nil, cs, testutil.TestLogger(t))
	cs.handleConnect(admin)
	cs.handleUserJoin(admin)
	user := joinTestClient(t, cs, "conn-2", "bob", DefaultRoom)
	drainEvents(admin)

	cs.handleAdminNotification(admin, "maintenance at noon")

	evs := eventsNamed(drainEvents(user), eventAdminNotification)
	require.Len(t, evs, 1)
	payload := evs[0].Data.(adminNotificationPayload)
	assert.Equal(t, "maintenance at noon", payload.Message)
	assert.Equal(t, "admin", payload.From)
	assert.NotEmpty(t, payload.Timestamp)
}

func TestHandleAdminNotification_NonAdminIgnored(t *testing.T) {
	cs := newTestServer(t)
	user := joinTestClient(t, cs, "conn-1", "bob", DefaultRoom)
	watcher := joinTestClient(t, cs, "conn-2", "carol", DefaultRoom)

	cs.handleAdminNotification(user, "pwned")

	assert.Empty(t, eventsNamed(drainEvents(watcher), eventAdminNotification),
		"non-admin broadcast must be dropped")
}

func TestDispatch_MalformedPayload(t *testing.T) {
	cs := newTestServer(t)
	c := joinTestClient(t, cs, "conn-1", "alice", DefaultRoom)

	cs.dispatch(&ClientEvent{Name: eventJoinRoom, Data: []byte(`{"not":"a string"}`), client: c})
	cs.dispatch(&ClientEvent{Name: eventSendMessage, Data: []byte(`[]`), client: c})
	cs.dispatch(&ClientEvent{Name: "no-such-event", Data: []byte(`{}`), client: c})

	assert.Empty(t, drainEvents(c), "malformed events should be ignored")
}
