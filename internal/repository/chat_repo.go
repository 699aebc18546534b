package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-chat/internal/models"
)

// MessageFilter selects a newest-first window of a chat's history.
type MessageFilter struct {
	ChatID string
	// Since is the member's join fence; older messages are never returned.
	Since time.Time
	// Before, when set, is the cursor message; only strictly older messages are returned.
	Before *models.Message
	Limit  int
}

// ChatRepository is the persistence gateway for chats, memberships and messages.
type ChatRepository interface {
	// WithTx runs fn inside one transaction; fn must only use the repository it receives.
	WithTx(ctx context.Context, fn func(tx ChatRepository) error) error

	CreateChat(ctx context.Context, chat *models.Chat, participants []models.ChatParticipant) error
	FindChat(ctx context.Context, chatID string) (models.Chat, error)
	FindDirectChat(ctx context.Context, userA, userB string) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
	SetChatName(ctx context.Context, chatID, name string) error
	TouchChat(ctx context.Context, chatID string, at time.Time) error

	FindParticipant(ctx context.Context, chatID, userID string) (models.ChatParticipant, error)
	ActiveParticipants(ctx context.Context, chatID string) ([]models.ChatParticipant, error)
	InactiveParticipants(ctx context.Context, chatID string) ([]models.ChatParticipant, error)
	CreateParticipant(ctx context.Context, participant *models.ChatParticipant) error
	SaveMembership(ctx context.Context, participant models.ChatParticipant) error
	// SetReadFence moves an active member's read fence; it reports false when the member is not active.
	SetReadFence(ctx context.Context, chatID, userID string, at time.Time) (bool, error)
	CountParticipantRows(ctx context.Context, chatID, userID string) (int64, error)
	Contacts(ctx context.Context, userID string) ([]string, error)

	CreateMessage(ctx context.Context, message *models.Message) error
	FindMessage(ctx context.Context, chatID, messageID string) (models.Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]models.Message, error)
	LatestMessages(ctx context.Context, chatIDs []string) (map[string]models.Message, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// activeMembership is the query twin of models.ChatParticipant.IsActive.
func activeMembership(db *gorm.DB) *gorm.DB {
	return db.Where("chat_participants.deleted_at IS NULL")
}

func activeMembersWithUsers(db *gorm.DB) *gorm.DB {
	return activeMembership(db).Order("chat_participants.joined_at ASC")
}

// forUpdate locks the selected rows until the surrounding transaction ends.
// SQLite serialises writers on its own and has no row locks.
func (r *chatRepository) forUpdate(db *gorm.DB) *gorm.DB {
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r *chatRepository) WithTx(ctx context.Context, fn func(tx ChatRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&chatRepository{db: tx})
	})
}

func (r *chatRepository) CreateChat(ctx context.Context, chat *models.Chat, participants []models.ChatParticipant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(chat).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].ChatID = chat.ID
			if err := tx.Omit(clause.Associations).Create(&participants[i]).Error; err != nil {
				return err
			}
		}
		chat.Participants = participants
		return nil
	})
}

func (r *chatRepository) FindChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error; err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// FindDirectChat returns the oldest direct chat holding a row for both users,
// whatever the state of those rows.
func (r *chatRepository) FindDirectChat(ctx context.Context, userA, userB string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_participants pa ON pa.chat_id = chats.id AND pa.user_id = ?", userA).
		Joins("JOIN chat_participants pb ON pb.chat_id = chats.id AND pb.user_id = ?", userB).
		Where("chats.is_group = ?", false).
		Order("chats.created_at ASC").
		First(&chat).Error
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *chatRepository) ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_participants me ON me.chat_id = chats.id AND me.user_id = ? AND me.deleted_at IS NULL", userID).
		Preload("Participants", activeMembersWithUsers).
		Preload("Participants.User").
		Order("chats.updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *chatRepository) SetChatName(ctx context.Context, chatID, name string) error {
	return r.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", chatID).Update("name", name).Error
}

func (r *chatRepository) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", chatID).Update("updated_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindParticipant returns the pair's row in any state, locking it when inside a transaction.
func (r *chatRepository) FindParticipant(ctx context.Context, chatID, userID string) (models.ChatParticipant, error) {
	var participant models.ChatParticipant
	err := r.forUpdate(r.db.WithContext(ctx)).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		First(&participant).Error
	if err != nil {
		return models.ChatParticipant{}, err
	}
	return participant, nil
}

func (r *chatRepository) ActiveParticipants(ctx context.Context, chatID string) ([]models.ChatParticipant, error) {
	var participants []models.ChatParticipant
	err := r.db.WithContext(ctx).
		Scopes(activeMembersWithUsers).
		Preload("User").
		Where("chat_participants.chat_id = ?", chatID).
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *chatRepository) InactiveParticipants(ctx context.Context, chatID string) ([]models.ChatParticipant, error) {
	var participants []models.ChatParticipant
	err := r.forUpdate(r.db.WithContext(ctx)).
		Where("chat_id = ? AND deleted_at IS NOT NULL", chatID).
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *chatRepository) CreateParticipant(ctx context.Context, participant *models.ChatParticipant) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(participant).Error
}

// SaveMembership persists the lifecycle columns of an existing row.
func (r *chatRepository) SaveMembership(ctx context.Context, participant models.ChatParticipant) error {
	result := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("id = ?", participant.ID).
		Updates(map[string]interface{}{
			"is_admin":             participant.IsAdmin,
			"joined_at":            participant.JoinedAt,
			"last_message_read_at": participant.LastMessageReadAt,
			"deleted_at":           participant.DeletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chatRepository) SetReadFence(ctx context.Context, chatID, userID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Scopes(activeMembership).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Update("last_message_read_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *chatRepository) CountParticipantRows(ctx context.Context, chatID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count, err
}

// Contacts lists every other user sharing at least one active membership with userID.
func (r *chatRepository) Contacts(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.ChatParticipant{}).
		Distinct("chat_participants.user_id").
		Joins("JOIN chat_participants me ON me.chat_id = chat_participants.chat_id AND me.user_id = ? AND me.deleted_at IS NULL", userID).
		Scopes(activeMembership).
		Where("chat_participants.user_id <> ?", userID).
		Pluck("chat_participants.user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(message).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", message.SenderID).First(&message.Sender).Error
}

func (r *chatRepository) FindMessage(ctx context.Context, chatID, messageID string) (models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Where("chat_id = ? AND id = ?", chatID, messageID).First(&message).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListMessages returns up to filter.Limit messages ordered newest first. Ties on
// created_at are broken by id so cursors are stable.
func (r *chatRepository) ListMessages(ctx context.Context, filter MessageFilter) ([]models.Message, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := r.db.WithContext(ctx).
		Preload("Sender").
		Where("chat_id = ? AND created_at >= ?", filter.ChatID, filter.Since)
	if filter.Before != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Before.CreatedAt, filter.Before.CreatedAt, filter.Before.ID)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Order("id DESC").Limit(filter.Limit).Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *chatRepository) LatestMessages(ctx context.Context, chatIDs []string) (map[string]models.Message, error) {
	out := make(map[string]models.Message, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("messages.chat_id IN ?", chatIDs).
		Where("messages.id = (SELECT m2.id FROM messages m2 WHERE m2.chat_id = messages.chat_id ORDER BY m2.created_at DESC, m2.id DESC LIMIT 1)").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for _, message := range messages {
		out[message.ChatID] = message
	}
	return out, nil
}

type unreadRow struct {
	ChatID      string
	UnreadCount int64
}

// UnreadCounts aggregates, per active membership of userID, the messages from
// others inside the join fence and strictly after the read fence.
func (r *chatRepository) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	var rows []unreadRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT cp.chat_id AS chat_id, COUNT(m.id) AS unread_count
		FROM chat_participants cp
		LEFT JOIN messages m ON m.chat_id = cp.chat_id
			AND m.sender_id <> cp.user_id
			AND m.created_at >= cp.joined_at
			AND (cp.last_message_read_at IS NULL OR m.created_at > cp.last_message_read_at)
		WHERE cp.user_id = ? AND cp.deleted_at IS NULL
		GROUP BY cp.chat_id`, userID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.ChatID] = int(row.UnreadCount)
	}
	return out, nil
}
