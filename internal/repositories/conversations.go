package repositories

import (
	"context"
	"fmt"
	"time"

	"dreamflow/internal/models"

	"gorm.io/gorm"
)

type ConversationRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db, now: time.Now}
}

func (r *ConversationRepository) Create(ctx context.Context, owner uint) (models.Conversation, error) {
	conv := models.Conversation{UserID: owner}
	if err := r.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (r *ConversationRepository) Get(ctx context.Context, owner, id uint) (models.Conversation, error) {
	var conv models.Conversation
	if err := ownedConversation(r.db.WithContext(ctx), owner, id, &conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// History returns at most limit of the newest messages, oldest first.
func (r *ConversationRepository) History(ctx context.Context, owner, conversationID uint, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, owner).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("load history for conversation %d: %w", conversationID, err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AppendTurn stores the user message and then the assistant reply in one
// transaction and bumps the conversation's updated_at.
func (r *ConversationRepository) AppendTurn(
	ctx context.Context,
	owner, conversationID uint,
	userText, assistantText string,
	toolLog []models.ToolCallRecord,
) (models.Message, models.Message, error) {
	toolCalls, err := models.EncodeToolCalls(toolLog)
	if err != nil {
		return models.Message{}, models.Message{}, err
	}

	now := r.now()
	userMsg := models.Message{
		ConversationID: conversationID,
		UserID:         owner,
		Role:           models.RoleUser,
		Content:        userText,
		CreatedAt:      now,
	}
	assistantMsg := models.Message{
		ConversationID: conversationID,
		UserID:         owner,
		Role:           models.RoleAssistant,
		Content:        assistantText,
		ToolCalls:      toolCalls,
		CreatedAt:      now,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := ownedConversation(tx, owner, conversationID, &conv); err != nil {
			return err
		}
		if err := tx.Create(&userMsg).Error; err != nil {
			return err
		}
		if err := tx.Create(&assistantMsg).Error; err != nil {
			return err
		}
		return tx.Model(&conv).Update("updated_at", now).Error
	})
	if err != nil {
		return models.Message{}, models.Message{}, err
	}
	return userMsg, assistantMsg, nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, owner uint, limit int) ([]models.Conversation, error) {
	convs := []models.Conversation{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

func (r *ConversationRepository) Messages(ctx context.Context, owner, conversationID uint) ([]models.Message, error) {
	db := r.db.WithContext(ctx)

	var conv models.Conversation
	if err := ownedConversation(db, owner, conversationID, &conv); err != nil {
		return nil, err
	}

	messages := []models.Message{}
	err := db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("load messages for conversation %d: %w", conversationID, err)
	}
	return messages, nil
}

func ownedConversation(db *gorm.DB, owner, id uint, dest *models.Conversation) error {
	err := db.Where("id = ? AND user_id = ?", id, owner).First(dest).Error
	if err != nil {
		return notFound(err, "conversation", id)
	}
	return nil
}
