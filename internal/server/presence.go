package server

import (
	"slices"
	"time"

	"github.com/pivogram/pivogram/internal/types"
)

// presenceGraceWindow is how long a disconnected entry lingers, marked
// offline, before it is dropped from the snapshot. A quick reconnect shows
// up as a fresh entry while the stale one ages out without flickering the
// whole list.
const presenceGraceWindow = 5 * time.Second

type presenceEntry struct {
	client      *Client
	username    string
	role        string
	avatarUrl   string
	currentRoom string
	online      bool
	lastSeen    time.Time
}

// presenceRegistry tracks which connections are bound to which identities.
// It is only ever touched from the ChatServer run loop.
type presenceRegistry struct {
	entries map[*Client]*presenceEntry
	order   []*Client
}

func newPresenceRegistry() *presenceRegistry {
	return &presenceRegistry{
		entries: make(map[*Client]*presenceEntry),
	}
}

// register records a connection as online. Registering the same connection
// twice refreshes its lastSeen stamp.
func (p *presenceRegistry) register(c *Client, account types.Identity) *presenceEntry {
	if entry, ok := p.entries[c]; ok {
		entry.online = true
		entry.lastSeen = Now()
		return entry
	}

	entry := &presenceEntry{
		client:    c,
		username:  account.Username,
		role:      account.Role,
		avatarUrl: account.AvatarUrl,
		online:    true,
		lastSeen:  Now(),
	}
	p.entries[c] = entry
	p.order = append(p.order, c)
	return entry
}

func (p *presenceRegistry) entry(c *Client) (*presenceEntry, bool) {
	entry, ok := p.entries[c]
	return entry, ok
}

// markOffline flips the entry offline and stamps lastSeen; the record itself
// stays until the grace window lapses.
func (p *presenceRegistry) markOffline(c *Client) bool {
	entry, ok := p.entries[c]
	if !ok {
		return false
	}

	entry.online = false
	entry.lastSeen = Now()
	return true
}

func (p *presenceRegistry) remove(c *Client) bool {
	if _, ok := p.entries[c]; !ok {
		return false
	}

	delete(p.entries, c)
	p.order = slices.DeleteFunc(p.order, func(other *Client) bool {
		return other == c
	})
	return true
}

func (p *presenceRegistry) setRoom(c *Client, roomId string) {
	if entry, ok := p.entries[c]; ok {
		entry.currentRoom = roomId
	}
}

func (p *presenceRegistry) setAvatar(username, avatarUrl string) {
	for _, entry := range p.entries {
		if entry.username == username {
			entry.avatarUrl = avatarUrl
		}
	}
}

// findOnline resolves an identity to a live connection, or nil if the user
// has no online connection right now.
func (p *presenceRegistry) findOnline(username string) *Client {
	for _, c := range p.order {
		entry := p.entries[c]
		if entry.online && entry.username == username {
			return c
		}
	}
	return nil
}

func (p *presenceRegistry) snapshot() []types.PresenceEntry {
	snapshot := make([]types.PresenceEntry, 0, len(p.order))
	for _, c := range p.order {
		entry := p.entries[c]
		snapshot = append(snapshot, types.PresenceEntry{
			Id:          c.id,
			Username:    entry.username,
			CurrentRoom: entry.currentRoom,
			AvatarUrl:   entry.avatarUrl,
			Role:        entry.role,
			Online:      entry.online,
			LastSeen:    entry.lastSeen,
		})
	}
	return snapshot
}
