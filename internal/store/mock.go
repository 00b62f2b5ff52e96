package store

import (
	"github.com/pivogram/pivogram/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(id int) (Account, error) {
	args := m.Called(id)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetAccountByUsername(username string) (Account, error) {
	args := m.Called(username)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) UpdateAvatar(username, avatarUrl string) error {
	args := m.Called(username, avatarUrl)
	return args.Error(0)
}
func (m *MockChatRepository) AppendRoomMessage(roomId string, msg types.Message) error {
	args := m.Called(roomId, msg)
	return args.Error(0)
}
func (m *MockChatRepository) AppendDirectMessage(userA, userB string, msg types.Message) error {
	args := m.Called(userA, userB, msg)
	return args.Error(0)
}
func (m *MockChatRepository) RecentRoomMessages(roomId string, limit int) ([]types.Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]types.Message), args.Error(1)
}
func (m *MockChatRepository) RecentDirectMessages(userA, userB string, limit int) ([]types.Message, error) {
	args := m.Called(userA, userB, limit)
	return args.Get(0).([]types.Message), args.Error(1)
}
func (m *MockChatRepository) UpdateRoomMessage(roomId string, messageId int64, author, newBody string) (types.Message, error) {
	args := m.Called(roomId, messageId, author, newBody)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockChatRepository) UpdateDirectMessage(userA, userB string, messageId int64, author, newBody string) (types.Message, error) {
	args := m.Called(userA, userB, messageId, author, newBody)
	return args.Get(0).(types.Message), args.Error(1)
}
