package store

import (
	"time"

	"github.com/pivogram/pivogram/internal/types"
)

type Account struct {
	Id           int    `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:20"`
	PasswordHash string
	Role         string
	AvatarUrl    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HistoryEntry is one persisted message in a room or direct-message
// partition. Partition is "room:<id>" or "dm:<pair key>".
type HistoryEntry struct {
	Id              int64  `gorm:"primaryKey;autoIncrement"`
	Partition       string `gorm:"index:idx_partition_msg,priority:1"`
	MessageId       int64  `gorm:"index:idx_partition_msg,priority:2"`
	Username        string
	Recipient       string
	Body            string
	ImageUrl        string
	AvatarUrl       string
	Role            string
	RoomId          string
	ReplyToId       int64
	ReplyToUsername string
	ReplyToSnippet  string
	Edited          bool
	EditedAt        *time.Time
	Timestamp       time.Time
}

// SchemaMeta carries the storage format marker. Format v2 holds both room
// and direct-message partitions; v1 was room-only.
type SchemaMeta struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

const (
	formatKey     = "format"
	formatVersion = "v2"
)

type CreateAccountParams struct {
	Username     string
	PasswordHash string
	Role         string
}

func entryFromMessage(partition string, msg types.Message) HistoryEntry {
	return HistoryEntry{
		Partition:       partition,
		MessageId:       msg.Id,
		Username:        msg.Username,
		Recipient:       msg.To,
		Body:            msg.Body,
		ImageUrl:        msg.ImageUrl,
		AvatarUrl:       msg.AvatarUrl,
		Role:            msg.Role,
		RoomId:          msg.RoomId,
		ReplyToId:       msg.ReplyToId,
		ReplyToUsername: msg.ReplyToUsername,
		ReplyToSnippet:  msg.ReplyToSnippet,
		Edited:          msg.Edited,
		EditedAt:        msg.EditedAt,
		Timestamp:       msg.Timestamp,
	}
}

func (e HistoryEntry) toMessage() types.Message {
	return types.Message{
		Id:              e.MessageId,
		Username:        e.Username,
		To:              e.Recipient,
		Body:            e.Body,
		ImageUrl:        e.ImageUrl,
		AvatarUrl:       e.AvatarUrl,
		Role:            e.Role,
		RoomId:          e.RoomId,
		ReplyToId:       e.ReplyToId,
		ReplyToUsername: e.ReplyToUsername,
		ReplyToSnippet:  e.ReplyToSnippet,
		Edited:          e.Edited,
		EditedAt:        e.EditedAt,
		Timestamp:       e.Timestamp,
	}
}
