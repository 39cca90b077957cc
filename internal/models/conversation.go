package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Conversation struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint      `json:"owner_user_id" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID uint           `json:"conversation_id" gorm:"not null;index"`
	UserID         uint           `json:"owner_user_id" gorm:"not null;index"`
	Role           Role           `json:"role" gorm:"type:varchar(20);not null"`
	Content        string         `json:"content" gorm:"type:text;not null"`
	ToolCalls      datatypes.JSON `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ToolCallRecord is one executed tool invocation as stored on an assistant message.
type ToolCallRecord struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result"`
}

// EncodeToolCalls returns nil for an empty log so the column stays NULL.
func EncodeToolCalls(records []ToolCallRecord) (datatypes.JSON, error) {
	if len(records) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode tool calls: %w", err)
	}
	return datatypes.JSON(data), nil
}

func (m Message) ToolCallRecords() ([]ToolCallRecord, error) {
	if len(m.ToolCalls) == 0 || string(m.ToolCalls) == "null" {
		return nil, nil
	}
	var records []ToolCallRecord
	if err := json.Unmarshal(m.ToolCalls, &records); err != nil {
		return nil, fmt.Errorf("decode tool calls for message %d: %w", m.ID, err)
	}
	return records, nil
}

// MessageView is the API shape of a persisted message.
type MessageView struct {
	ID             uint             `json:"id"`
	ConversationID uint             `json:"conversation_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	ToolCalls      []ToolCallRecord `json:"tool_calls,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (m Message) View() (MessageView, error) {
	records, err := m.ToolCallRecords()
	if err != nil {
		return MessageView{}, err
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		ToolCalls:      records,
		CreatedAt:      m.CreatedAt,
	}, nil
}
