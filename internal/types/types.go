package types

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is an authenticated user account bound to a connection.
type Identity struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	AvatarUrl string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Message is a chat message as delivered on the wire and stored in history.
// The ReplyTo fields are a point-in-time copy of the quoted message, not a
// live reference; they are not rewritten when the quoted message is edited.
type Message struct {
	Id              int64      `json:"id"`
	Username        string     `json:"username"`
	To              string     `json:"to,omitempty"`
	Body            string     `json:"message"`
	ImageUrl        string     `json:"imageUrl,omitempty"`
	AvatarUrl       string     `json:"avatarUrl,omitempty"`
	Role            string     `json:"role,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	RoomId          string     `json:"roomId,omitempty"`
	ReplyToId       int64      `json:"replyToId,omitempty"`
	ReplyToUsername string     `json:"replyToUsername,omitempty"`
	ReplyToSnippet  string     `json:"replyToSnippet,omitempty"`
	Edited          bool       `json:"edited,omitempty"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
}

// PresenceEntry is one row of the users-update snapshot.
type PresenceEntry struct {
	Id          string    `json:"id"`
	Username    string    `json:"username"`
	CurrentRoom string    `json:"currentRoom,omitempty"`
	AvatarUrl   string    `json:"avatarUrl,omitempty"`
	Role        string    `json:"role"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"lastSeen"`
}

// GroupInfo is one row of the per-connection groups-update list.
type GroupInfo struct {
	Id          string `json:"id"`
	MemberCount int    `json:"memberCount"`
}
