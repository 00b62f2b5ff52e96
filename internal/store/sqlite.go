package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pivogram/pivogram/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SqliteChatRepository persists accounts and capped message history in an
// embedded sqlite database. Every append is committed before it returns, so
// a finished write always leaves a complete, readable partition.
type SqliteChatRepository struct {
	db         *gorm.DB
	maxHistory int
}

func NewSqliteChatRepository(path string, maxHistory int) (*SqliteChatRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&Account{}, &HistoryEntry{}, &SchemaMeta{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Stamp the storage format. An existing v1 marker (room-only history) is
	// upgraded in place; dm partitions simply start empty.
	meta := SchemaMeta{Key: formatKey, Value: formatVersion}
	if err := db.Where(SchemaMeta{Key: formatKey}).Assign(meta).FirstOrCreate(&meta).Error; err != nil {
		return nil, fmt.Errorf("stamp format version: %w", err)
	}

	if maxHistory <= 0 {
		maxHistory = 500
	}

	return &SqliteChatRepository{db: db, maxHistory: maxHistory}, nil
}

func (s *SqliteChatRepository) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SqliteChatRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	role := params.Role
	if role == "" {
		role = types.RoleUser
	}

	account := Account{
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		Role:         role,
	}

	err := s.db.Create(&account).Error
	if err != nil {
		var existing Account
		if s.db.Where("username = ?", params.Username).First(&existing).Error == nil {
			return Account{}, ErrAccountExists
		}
		return Account{}, err
	}

	return account, nil
}

func (s *SqliteChatRepository) GetAccountById(id int) (Account, error) {
	var account Account
	err := s.db.First(&account, id).Error
	return account, err
}

func (s *SqliteChatRepository) GetAccountByUsername(username string) (Account, error) {
	var account Account
	err := s.db.Where("username = ?", username).First(&account).Error
	return account, err
}

func (s *SqliteChatRepository) UpdateAvatar(username, avatarUrl string) error {
	return s.db.Model(&Account{}).Where("username = ?", username).
		Update("avatar_url", avatarUrl).Error
}

func (s *SqliteChatRepository) AppendRoomMessage(roomId string, msg types.Message) error {
	return s.appendMessage(roomPartition(roomId), msg)
}

func (s *SqliteChatRepository) AppendDirectMessage(userA, userB string, msg types.Message) error {
	return s.appendMessage(dmPartition(userA, userB), msg)
}

func (s *SqliteChatRepository) appendMessage(partition string, msg types.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		entry := entryFromMessage(partition, msg)
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return trimPartition(tx, partition, s.maxHistory)
	})
}

// trimPartition drops the oldest entries beyond max, keeping the newest ones.
func trimPartition(tx *gorm.DB, partition string, max int) error {
	keep := tx.Model(&HistoryEntry{}).Select("id").
		Where("partition = ?", partition).
		Order("message_id DESC, id DESC").
		Limit(max)

	return tx.Where("partition = ? AND id NOT IN (?)", partition, keep).
		Delete(&HistoryEntry{}).Error
}

func (s *SqliteChatRepository) RecentRoomMessages(roomId string, limit int) ([]types.Message, error) {
	return s.recentMessages(roomPartition(roomId), limit)
}

func (s *SqliteChatRepository) RecentDirectMessages(userA, userB string, limit int) ([]types.Message, error) {
	return s.recentMessages(dmPartition(userA, userB), limit)
}

// recentMessages returns up to limit entries in chronological order; an
// unknown partition yields an empty slice, never an error.
func (s *SqliteChatRepository) recentMessages(partition string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = s.maxHistory
	}

	var entries []HistoryEntry
	err := s.db.Where("partition = ?", partition).
		Order("message_id DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	slices.Reverse(entries)

	messages := make([]types.Message, len(entries))
	for i, e := range entries {
		messages[i] = e.toMessage()
	}
	return messages, nil
}

func (s *SqliteChatRepository) UpdateRoomMessage(roomId string, messageId int64, author, newBody string) (types.Message, error) {
	return s.updateMessage(roomPartition(roomId), messageId, author, newBody)
}

func (s *SqliteChatRepository) UpdateDirectMessage(userA, userB string, messageId int64, author, newBody string) (types.Message, error) {
	return s.updateMessage(dmPartition(userA, userB), messageId, author, newBody)
}

// updateMessage mutates body, edited and editedAt for the matching entry.
// The author check lives here: an id that exists under a different author is
// reported exactly like a missing id.
func (s *SqliteChatRepository) updateMessage(partition string, messageId int64, author, newBody string) (types.Message, error) {
	var entry HistoryEntry
	err := s.db.Where("partition = ? AND message_id = ? AND username = ?", partition, messageId, author).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Message{}, ErrMessageNotFound
		}
		return types.Message{}, err
	}

	now := time.Now().UTC().Round(time.Millisecond)
	entry.Body = newBody
	entry.Edited = true
	entry.EditedAt = &now

	if err := s.db.Save(&entry).Error; err != nil {
		return types.Message{}, err
	}

	return entry.toMessage(), nil
}
