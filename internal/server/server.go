package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/pivogram/pivogram/internal/stats"
	"github.com/pivogram/pivogram/internal/store"
	"github.com/teris-io/shortid"
)

const callSweepInterval = 30 * time.Second

type stopReq struct {
	done chan struct{}
}

type avatarUpdate struct {
	username  string
	avatarUrl string
}

// ChatServer coordinates presence, room membership, message routing and call
// signaling. All shared state (presence registry, room index, call table) is
// owned by the Run goroutine; every inbound event runs to completion there,
// which is the whole concurrency discipline: no other goroutine ever touches
// the maps.
type ChatServer struct {
	log            *log.Logger
	repo           store.ChatRepository
	stats          stats.StatsProvider
	clients        map[string]*Client
	presence       *presenceRegistry
	rooms          *roomIndex
	calls          *callTable
	lastMessageId  int64
	registerChan   chan *Client
	deregisterChan chan *Client
	eventChan      chan *ClientEvent
	expiredChan    chan *Client
	avatarChan     chan avatarUpdate
	photoChan      chan PhotoMessageParams
	stop           chan stopReq
	generateCallId func() (string, error)
}

func NewChatServer(logger *log.Logger, repo store.ChatRepository, su stats.StatsProvider) (*ChatServer, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, uint64(time.Now().UnixNano()))
	if err != nil {
		return nil, err
	}

	cs := &ChatServer{
		log:            logger,
		repo:           repo,
		stats:          su,
		clients:        make(map[string]*Client),
		presence:       newPresenceRegistry(),
		rooms:          newRoomIndex(),
		calls:          newCallTable(),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client, 256),
		eventChan:      make(chan *ClientEvent, 256),
		expiredChan:    make(chan *Client, 64),
		avatarChan:     make(chan avatarUpdate),
		photoChan:      make(chan PhotoMessageParams),
		stop:           make(chan stopReq),
		generateCallId: func() (string, error) {
			id, err := sid.Generate()
			return "call_" + id, err
		},
	}

	for _, metric := range []string{"NumActiveClients", "NumActiveRooms", "NumActiveCalls", "NumMessagesTotal"} {
		su.RegisterMetric(metric)
	}

	return cs, nil
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

// UpdateAvatar refreshes the avatar on every live presence entry for the
// user and pushes a fresh snapshot. Called from HTTP handlers; the change is
// applied on the run loop.
func (cs *ChatServer) UpdateAvatar(ctx context.Context, username, avatarUrl string) error {
	select {
	case cs.avatarChan <- avatarUpdate{username: username, avatarUrl: avatarUrl}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PostPhotoMessage routes an uploaded image into a room as a message with an
// empty body. Called from HTTP handlers; the post happens on the run loop.
func (cs *ChatServer) PostPhotoMessage(ctx context.Context, params PhotoMessageParams) error {
	select {
	case cs.photoChan <- params:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) Run() {
	sweeper := time.NewTicker(callSweepInterval)
	defer sweeper.Stop()

	for {
		select {
		case c := <-cs.registerChan:
			cs.handleConnect(c)
		case c := <-cs.deregisterChan:
			cs.handleDisconnect(c)
		case ev := <-cs.eventChan:
			cs.dispatch(ev)
		case c := <-cs.expiredChan:
			cs.handlePresenceExpiry(c)
		case update := <-cs.avatarChan:
			cs.presence.setAvatar(update.username, update.avatarUrl)
			cs.broadcastUsers()
		case params := <-cs.photoChan:
			cs.handlePhotoPost(params)
		case <-sweeper.C:
			cs.calls.sweep(Now())
		case req := <-cs.stop:
			cs.log.Println("stopping clients")
			for _, c := range cs.clients {
				c.stopClient()
			}
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) dispatch(ev *ClientEvent) {
	c := ev.client

	switch ev.Name {
	case eventUserJoin:
		cs.handleUserJoin(c)
	case eventJoinRoom:
		var roomId string
		if err := json.Unmarshal(ev.Data, &roomId); err != nil || roomId == "" {
			return
		}
		cs.handleJoinRoom(c, roomId)
	case eventCreateGroup:
		var roomId string
		if err := json.Unmarshal(ev.Data, &roomId); err != nil || roomId == "" {
			return
		}
		cs.handleCreateGroup(c, roomId)
	case eventGetGroups:
		cs.handleGetGroups(c)
	case eventSendMessage:
		var payload sendMessagePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handleSendMessage(c, payload)
	case eventEditMessage:
		var payload editMessagePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handleEditMessage(c, payload)
	case eventSendPrivate:
		var payload sendPrivatePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handleSendPrivate(c, payload)
	case eventPrivateHistory:
		var payload privateHistoryPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handlePrivateHistory(c, payload)
	case eventEditPrivate:
		var payload editPrivatePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handleEditPrivate(c, payload)
	case eventInitiateCall:
		var payload initiateCallPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handleInitiateCall(c, payload)
	case eventCallResponse:
		var payload callResponsePayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handleCallResponse(c, payload)
	case eventEndCall:
		var callId string
		if err := json.Unmarshal(ev.Data, &callId); err != nil || callId == "" {
			return
		}
		cs.handleEndCall(c, callId)
	case eventWebrtcOffer, eventWebrtcAnswer, eventWebrtcIceCand:
		var payload webrtcSignalPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return
		}
		cs.handleWebrtcSignal(c, ev.Name, payload)
	case eventAdminNotification:
		var message string
		if err := json.Unmarshal(ev.Data, &message); err != nil || message == "" {
			return
		}
		cs.handleAdminNotification(c, message)
	default:
		cs.log.Printf("unknown event %q from %q", ev.Name, c.id)
	}
}

func (cs *ChatServer) handleConnect(c *Client) {
	cs.log.Printf("adding connection %q for %q", c.id, c.account.Username)
	cs.clients[c.id] = c
	cs.stats.Incr("NumActiveClients")
}

// handleUserJoin binds the connection's authenticated identity into the
// presence registry and announces the updated list. A pending invite room is
// joined immediately afterwards.
func (cs *ChatServer) handleUserJoin(c *Client) {
	cs.presence.register(c, c.account)
	cs.broadcastUsers()

	if c.inviteRoom != "" {
		roomId := c.inviteRoom
		c.inviteRoom = ""
		cs.handleJoinRoom(c, roomId)
	}
}

func (cs *ChatServer) handleJoinRoom(c *Client, roomId string) {
	if _, ok := cs.presence.entry(c); !ok {
		return
	}

	res := cs.rooms.join(c, roomId)
	cs.presence.setRoom(c, roomId)

	if res.created {
		cs.stats.Incr("NumActiveRooms")
	}
	if res.previousDeleted {
		cs.stats.Decr("NumActiveRooms")
	}

	c.queueEvent(&ServerEvent{Name: eventRoomJoined, Data: roomId})
	cs.replayRoomHistory(c, roomId)
	cs.broadcastUsers()
	cs.broadcastGroups()
}

func (cs *ChatServer) handleCreateGroup(c *Client, roomId string) {
	if _, ok := cs.presence.entry(c); !ok {
		return
	}

	if cs.rooms.create(roomId, c) {
		cs.stats.Incr("NumActiveRooms")
		cs.broadcastGroups()
	}
}

func (cs *ChatServer) handleGetGroups(c *Client) {
	c.queueEvent(&ServerEvent{Name: eventGroupsUpdate, Data: cs.rooms.listFor(c)})
}

func (cs *ChatServer) handleAdminNotification(c *Client, message string) {
	entry, ok := cs.presence.entry(c)
	if !ok || entry.role != "admin" {
		return
	}

	cs.broadcastAll(&ServerEvent{
		Name: eventAdminNotification,
		Data: adminNotificationPayload{
			Message:   message,
			From:      entry.username,
			Timestamp: Now().Format(time.RFC3339),
		},
	})
}

func (cs *ChatServer) handleDisconnect(c *Client) {
	if _, ok := cs.clients[c.id]; !ok {
		return
	}

	cs.log.Printf("removing connection %q for %q", c.id, c.account.Username)

	// a dropped participant must never leave the other side waiting
	cs.endCallsForClient(c)

	delete(cs.clients, c.id)
	cs.stats.Decr("NumActiveClients")

	for _, roomId := range cs.rooms.removeClient(c) {
		cs.log.Printf("room %q disbanded", roomId)
		cs.stats.Decr("NumActiveRooms")
	}

	if cs.presence.markOffline(c) {
		time.AfterFunc(presenceGraceWindow, func() {
			select {
			case cs.expiredChan <- c:
			default:
			}
		})
	}

	cs.broadcastUsers()
	cs.broadcastGroups()
}

// handlePresenceExpiry drops an entry whose grace window lapsed. A
// connection that re-registered in the meantime is back online and is left
// alone.
func (cs *ChatServer) handlePresenceExpiry(c *Client) {
	entry, ok := cs.presence.entry(c)
	if !ok || entry.online {
		return
	}

	cs.presence.remove(c)
	cs.broadcastUsers()
}

func (cs *ChatServer) broadcastAll(ev *ServerEvent) {
	for _, c := range cs.clients {
		c.queueEvent(ev)
	}
}

func (cs *ChatServer) broadcastRoom(roomId string, ev *ServerEvent) {
	for c := range cs.rooms.members(roomId) {
		c.queueEvent(ev)
	}
}

// broadcastUsers pushes the full presence snapshot to every connection.
// Snapshot-per-mutation is the consistency model: O(n) per change, but every
// client converges within one round trip.
func (cs *ChatServer) broadcastUsers() {
	cs.broadcastAll(&ServerEvent{Name: eventUsersUpdate, Data: cs.presence.snapshot()})
}

// broadcastGroups sends each connection its own membership-scoped room list.
func (cs *ChatServer) broadcastGroups() {
	for _, c := range cs.clients {
		c.queueEvent(&ServerEvent{Name: eventGroupsUpdate, Data: cs.rooms.listFor(c)})
	}
}
