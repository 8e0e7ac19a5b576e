package types

import (
	"time"

	"github.com/google/uuid"
)

type DocumentKind string

const (
	DocumentKindText  DocumentKind = "text"
	DocumentKindCode  DocumentKind = "code"
	DocumentKindSheet DocumentKind = "sheet"
)

// Document is the artifact the document tools create and revise.
type Document struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID   uuid.UUID    `gorm:"type:uuid;not null;index;column:owner_id" json:"owner_id"`
	ChatID    uuid.UUID    `gorm:"type:uuid;index;column:chat_id" json:"chat_id"`
	Title     string       `gorm:"not null;column:title" json:"title"`
	Kind      DocumentKind `gorm:"not null;default:'text';column:kind" json:"kind"`
	Content   string       `gorm:"column:content" json:"content"`
	CreatedAt time.Time    `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string {
	return "document"
}

type Suggestion struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID   uuid.UUID `gorm:"type:uuid;not null;index;column:document_id" json:"document_id"`
	OwnerID      uuid.UUID `gorm:"type:uuid;not null;column:owner_id" json:"owner_id"`
	OriginalText  string   `gorm:"column:original_text" json:"original_text"`
	SuggestedText string   `gorm:"column:suggested_text" json:"suggested_text"`
	Description   string   `gorm:"column:description" json:"description"`
	ToolCallID   string    `gorm:"index;column:tool_call_id" json:"tool_call_id"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Suggestion) TableName() string {
	return "suggestion"
}
