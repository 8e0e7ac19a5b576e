package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// MessagePart is one typed content fragment of a message. Exactly the fields
// matching Type are set.
type MessagePart struct {
	Type       string          `json:"type"` // text | reasoning | tool-call | tool-result | file
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	FileURL    string          `json:"file_url,omitempty"`
	MediaType  string          `json:"media_type,omitempty"`
}

// Message rows are append-only: written exactly once when finalized, never
// edited in place. Seq breaks created_at ties by arrival order.
type Message struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uq_message_chat_seq;column:chat_id" json:"chat_id"`
	Role        MessageRole    `gorm:"not null;column:role" json:"role"`
	Parts       datatypes.JSON `gorm:"column:parts" json:"parts"`
	Attachments datatypes.JSON `gorm:"column:attachments" json:"attachments"`
	Seq         int64          `gorm:"not null;uniqueIndex:uq_message_chat_seq;column:seq" json:"seq"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (Message) TableName() string {
	return "message"
}

func (m *Message) DecodeParts() ([]MessagePart, error) {
	if len(m.Parts) == 0 {
		return nil, nil
	}
	var parts []MessagePart
	if err := json.Unmarshal(m.Parts, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

func EncodeParts(parts []MessagePart) (datatypes.JSON, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
