package store

import (
	"errors"
	"strings"

	"github.com/pivogram/pivogram/internal/types"
)

var (
	ErrAccountExists = errors.New("account already exists")
	// ErrMessageNotFound is returned both when no message matches the id and
	// when the message exists but was authored by someone else; callers must
	// not be able to tell the two apart.
	ErrMessageNotFound = errors.New("message not found")
)

type ChatRepository interface {
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(id int) (Account, error)
	GetAccountByUsername(username string) (Account, error)
	UpdateAvatar(username, avatarUrl string) error
	AppendRoomMessage(roomId string, msg types.Message) error
	AppendDirectMessage(userA, userB string, msg types.Message) error
	RecentRoomMessages(roomId string, limit int) ([]types.Message, error)
	RecentDirectMessages(userA, userB string, limit int) ([]types.Message, error)
	UpdateRoomMessage(roomId string, messageId int64, author, newBody string) (types.Message, error)
	UpdateDirectMessage(userA, userB string, messageId int64, author, newBody string) (types.Message, error)
}

// DmKey normalizes an unordered username pair to a canonical partition key,
// so (a, b) and (b, a) resolve to the same history.
func DmKey(userA, userB string) string {
	x, y := strings.TrimSpace(userA), strings.TrimSpace(userB)
	if x > y {
		x, y = y, x
	}
	return x + "|" + y
}

func roomPartition(roomId string) string {
	return "room:" + roomId
}

func dmPartition(userA, userB string) string {
	return "dm:" + DmKey(userA, userB)
}
