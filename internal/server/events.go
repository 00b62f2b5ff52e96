package server

import (
	"encoding/json"
	"time"
)

// Inbound event names.
const (
	eventUserJoin          = "user-join"
	eventJoinRoom          = "join-room"
	eventCreateGroup       = "create-group"
	eventGetGroups         = "get-groups"
	eventSendMessage       = "send-message"
	eventEditMessage       = "edit-message"
	eventSendPrivate       = "send-private"
	eventPrivateHistory    = "get-private-history"
	eventEditPrivate       = "edit-private-message"
	eventInitiateCall      = "initiate-call"
	eventCallResponse      = "call-response"
	eventEndCall           = "end-call"
	eventWebrtcOffer       = "webrtc-offer"
	eventWebrtcAnswer      = "webrtc-answer"
	eventWebrtcIceCand     = "webrtc-ice-candidate"
	eventAdminNotification = "admin-notification"
)

// Outbound event names.
const (
	eventUsersUpdate          = "users-update"
	eventRoomJoined           = "room-joined"
	eventGroupsUpdate         = "groups-update"
	eventNewMessage           = "new-message"
	eventPrivateMessage       = "private-message"
	eventMessageEdited        = "message-edited"
	eventPrivateMessageEdited = "private-message-edited"
	eventIncomingCall         = "incoming-call"
	eventCallStarted          = "call-started"
	eventCallDeclined         = "call-declined"
	eventCallEnded            = "call-ended"
	eventCallUnavailable      = "call-unavailable"
)

// ClientEvent is the envelope for everything a connection sends us.
type ClientEvent struct {
	Name   string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	client *Client
}

// ServerEvent is the envelope for everything we push to a connection.
type ServerEvent struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

type sendMessagePayload struct {
	RoomId          string `json:"roomId"`
	Message         string `json:"message"`
	ReplyToId       int64  `json:"replyToId,omitempty"`
	ReplyToUsername string `json:"replyToUsername,omitempty"`
	ReplyToSnippet  string `json:"replyToSnippet,omitempty"`
}

type editMessagePayload struct {
	MessageId  int64  `json:"messageId"`
	NewMessage string `json:"newMessage"`
	RoomId     string `json:"roomId"`
}

type sendPrivatePayload struct {
	To              string `json:"to"`
	Message         string `json:"message"`
	ReplyToId       int64  `json:"replyToId,omitempty"`
	ReplyToUsername string `json:"replyToUsername,omitempty"`
	ReplyToSnippet  string `json:"replyToSnippet,omitempty"`
}

type privateHistoryPayload struct {
	With string `json:"with"`
}

type editPrivatePayload struct {
	MessageId  int64  `json:"messageId"`
	NewMessage string `json:"newMessage"`
	OtherUser  string `json:"otherUser"`
}

type initiateCallPayload struct {
	// TargetUserId carries the callee's username.
	TargetUserId string `json:"targetUserId"`
	CallType     string `json:"callType"`
}

type callResponsePayload struct {
	CallId   string `json:"callId"`
	Accepted bool   `json:"accepted"`
}

// webrtcSignalPayload carries opaque session-description or candidate data;
// the server relays it without ever inspecting the contents.
type webrtcSignalPayload struct {
	TargetId  string          `json:"targetId"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type incomingCallPayload struct {
	CallerId   string `json:"callerId"`
	CallerName string `json:"callerName"`
	CallType   string `json:"callType"`
	CallId     string `json:"callId"`
}

type callStartedPayload struct {
	CallId string `json:"callId"`
}

type callUnavailablePayload struct {
	TargetUserId string `json:"targetUserId"`
}

type messageEditedPayload struct {
	MessageId  int64      `json:"messageId"`
	NewMessage string     `json:"newMessage"`
	Edited     bool       `json:"edited"`
	EditedAt   *time.Time `json:"editedAt"`
	OtherUser  string     `json:"otherUser,omitempty"`
}

type adminNotificationPayload struct {
	Message   string `json:"message"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
