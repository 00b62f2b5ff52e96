package server

import (
	"github.com/pivogram/pivogram/internal/types"
)

const (
	// DefaultRoom is seeded at startup and never deleted.
	DefaultRoom = "general"

	// historyReplayLimit caps the backlog replayed to a freshly joined
	// connection.
	historyReplayLimit = 100
)

// roomIndex maintains room membership: room id to member connections and
// connection to current room (one active room per connection). Rooms are
// created on demand and disbanded once their member set empties, except the
// default room. Only the ChatServer run loop touches it.
type roomIndex struct {
	rooms   map[string]map[*Client]struct{}
	current map[*Client]string
}

func newRoomIndex() *roomIndex {
	ri := &roomIndex{
		rooms:   make(map[string]map[*Client]struct{}),
		current: make(map[*Client]string),
	}
	ri.rooms[DefaultRoom] = make(map[*Client]struct{})
	return ri
}

type joinResult struct {
	previous        string
	created         bool
	previousDeleted bool
}

// join moves a connection into roomId, creating the room if needed and
// removing the connection from its previous room first.
func (ri *roomIndex) join(c *Client, roomId string) joinResult {
	var res joinResult

	if prev, ok := ri.current[c]; ok && prev != roomId {
		res.previous = prev
		res.previousDeleted = ri.removeMember(prev, c)
	}

	members, ok := ri.rooms[roomId]
	if !ok {
		members = make(map[*Client]struct{})
		ri.rooms[roomId] = members
		res.created = true
	}

	members[c] = struct{}{}
	ri.current[c] = roomId
	return res
}

// create makes an empty room and adds the creator to its member set without
// switching the creator's current room. Membership is the access-control
// mechanism: only members see the room until others arrive via invite.
func (ri *roomIndex) create(roomId string, creator *Client) bool {
	if _, ok := ri.rooms[roomId]; ok {
		return false
	}

	ri.rooms[roomId] = map[*Client]struct{}{creator: {}}
	return true
}

// removeMember deletes the connection from the room's member set and
// reports whether the emptied room was disbanded.
func (ri *roomIndex) removeMember(roomId string, c *Client) bool {
	members, ok := ri.rooms[roomId]
	if !ok {
		return false
	}

	delete(members, c)
	if len(members) == 0 && roomId != DefaultRoom {
		delete(ri.rooms, roomId)
		return true
	}
	return false
}

// removeClient purges the connection from every room, returning the ids of
// rooms disbanded by the purge.
func (ri *roomIndex) removeClient(c *Client) []string {
	var deleted []string
	for roomId, members := range ri.rooms {
		if _, ok := members[c]; !ok {
			continue
		}
		if ri.removeMember(roomId, c) {
			deleted = append(deleted, roomId)
		}
	}

	delete(ri.current, c)
	return deleted
}

func (ri *roomIndex) members(roomId string) map[*Client]struct{} {
	return ri.rooms[roomId]
}

func (ri *roomIndex) exists(roomId string) bool {
	_, ok := ri.rooms[roomId]
	return ok
}

// listFor returns the rooms the connection is currently a member of,
// annotated with live member counts. A room with history but no members is
// not listed; visibility is membership-gated.
func (ri *roomIndex) listFor(c *Client) []types.GroupInfo {
	groups := make([]types.GroupInfo, 0)
	for roomId, members := range ri.rooms {
		if _, ok := members[c]; ok {
			groups = append(groups, types.GroupInfo{
				Id:          roomId,
				MemberCount: len(members),
			})
		}
	}
	return groups
}
