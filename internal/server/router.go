package server

import (
	"strings"

	"github.com/pivogram/pivogram/internal/types"
)

// nextMessageId returns a millisecond-resolution timestamp id, bumped past
// the previous one when two messages land in the same millisecond so
// per-partition ordering stays stable.
func (cs *ChatServer) nextMessageId() int64 {
	id := Now().UnixMilli()
	if id <= cs.lastMessageId {
		id = cs.lastMessageId + 1
	}
	cs.lastMessageId = id
	return id
}

func (cs *ChatServer) handleSendMessage(c *Client, payload sendMessagePayload) {
	entry, ok := cs.presence.entry(c)
	if !ok || payload.RoomId == "" {
		return
	}

	msg := types.Message{
		Id:              cs.nextMessageId(),
		Username:        entry.username,
		Body:            payload.Message,
		AvatarUrl:       entry.avatarUrl,
		Role:            entry.role,
		Timestamp:       Now(),
		RoomId:          payload.RoomId,
		ReplyToId:       payload.ReplyToId,
		ReplyToUsername: payload.ReplyToUsername,
		ReplyToSnippet:  payload.ReplyToSnippet,
	}

	if err := cs.repo.AppendRoomMessage(payload.RoomId, msg); err != nil {
		cs.log.Println("append room message:", err)
		return
	}
	cs.stats.Incr("NumMessagesTotal")

	cs.broadcastRoom(payload.RoomId, &ServerEvent{Name: eventNewMessage, Data: msg})
}

func (cs *ChatServer) handleEditMessage(c *Client, payload editMessagePayload) {
	entry, ok := cs.presence.entry(c)
	if !ok || payload.MessageId == 0 || payload.NewMessage == "" || payload.RoomId == "" {
		return
	}

	updated, err := cs.repo.UpdateRoomMessage(payload.RoomId, payload.MessageId, entry.username, payload.NewMessage)
	if err != nil {
		// unknown id and foreign author both end here; nothing is sent
		return
	}

	cs.broadcastRoom(payload.RoomId, &ServerEvent{
		Name: eventMessageEdited,
		Data: messageEditedPayload{
			MessageId:  updated.Id,
			NewMessage: updated.Body,
			Edited:     true,
			EditedAt:   updated.EditedAt,
		},
	})
}

func (cs *ChatServer) handleSendPrivate(c *Client, payload sendPrivatePayload) {
	entry, ok := cs.presence.entry(c)
	if !ok {
		return
	}

	to := strings.TrimSpace(payload.To)
	text := strings.TrimSpace(payload.Message)
	if to == "" || text == "" {
		return
	}

	msg := types.Message{
		Id:              cs.nextMessageId(),
		Username:        entry.username,
		To:              to,
		Body:            text,
		AvatarUrl:       entry.avatarUrl,
		Role:            entry.role,
		Timestamp:       Now(),
		ReplyToId:       payload.ReplyToId,
		ReplyToUsername: payload.ReplyToUsername,
		ReplyToSnippet:  payload.ReplyToSnippet,
	}

	if err := cs.repo.AppendDirectMessage(entry.username, to, msg); err != nil {
		cs.log.Println("append direct message:", err)
		return
	}
	cs.stats.Incr("NumMessagesTotal")

	ev := &ServerEvent{Name: eventPrivateMessage, Data: msg}
	c.queueEvent(ev)
	// best-effort: an offline target simply finds the message in history
	if target := cs.presence.findOnline(to); target != nil && target != c {
		target.queueEvent(ev)
	}
}

func (cs *ChatServer) handlePrivateHistory(c *Client, payload privateHistoryPayload) {
	entry, ok := cs.presence.entry(c)
	if !ok {
		return
	}

	other := strings.TrimSpace(payload.With)
	if other == "" {
		return
	}

	msgs, err := cs.repo.RecentDirectMessages(entry.username, other, historyReplayLimit)
	if err != nil {
		cs.log.Println("recent direct messages:", err)
		return
	}

	for _, msg := range msgs {
		c.queueEvent(&ServerEvent{Name: eventPrivateMessage, Data: msg})
	}
}

func (cs *ChatServer) handleEditPrivate(c *Client, payload editPrivatePayload) {
	entry, ok := cs.presence.entry(c)
	if !ok || payload.MessageId == 0 || payload.NewMessage == "" || payload.OtherUser == "" {
		return
	}

	updated, err := cs.repo.UpdateDirectMessage(entry.username, payload.OtherUser, payload.MessageId, entry.username, payload.NewMessage)
	if err != nil {
		return
	}

	ev := &ServerEvent{
		Name: eventPrivateMessageEdited,
		Data: messageEditedPayload{
			MessageId:  updated.Id,
			NewMessage: updated.Body,
			Edited:     true,
			EditedAt:   updated.EditedAt,
			OtherUser:  payload.OtherUser,
		},
	}

	c.queueEvent(ev)
	if target := cs.presence.findOnline(payload.OtherUser); target != nil && target != c {
		target.queueEvent(ev)
	}
}

// replayRoomHistory delivers the recent backlog for a room to one freshly
// joined connection, oldest first.
func (cs *ChatServer) replayRoomHistory(c *Client, roomId string) {
	msgs, err := cs.repo.RecentRoomMessages(roomId, historyReplayLimit)
	if err != nil {
		cs.log.Println("recent room messages:", err)
		return
	}

	for _, msg := range msgs {
		c.queueEvent(&ServerEvent{Name: eventNewMessage, Data: msg})
	}
}

// PhotoMessageParams describes an uploaded image being posted into a room
// on behalf of an authenticated user.
type PhotoMessageParams struct {
	Username        string
	AvatarUrl       string
	Role            string
	RoomId          string
	ImageUrl        string
	ReplyToId       int64
	ReplyToUsername string
	ReplyToSnippet  string
}

func (cs *ChatServer) handlePhotoPost(params PhotoMessageParams) {
	msg := types.Message{
		Id:              cs.nextMessageId(),
		Username:        params.Username,
		Body:            "",
		ImageUrl:        params.ImageUrl,
		AvatarUrl:       params.AvatarUrl,
		Role:            params.Role,
		Timestamp:       Now(),
		RoomId:          params.RoomId,
		ReplyToId:       params.ReplyToId,
		ReplyToUsername: params.ReplyToUsername,
		ReplyToSnippet:  params.ReplyToSnippet,
	}

	if err := cs.repo.AppendRoomMessage(params.RoomId, msg); err != nil {
		cs.log.Println("append photo message:", err)
		return
	}
	cs.stats.Incr("NumMessagesTotal")

	cs.broadcastRoom(params.RoomId, &ServerEvent{Name: eventNewMessage, Data: msg})
}
