package types

import (
	"time"

	"github.com/google/uuid"
)

type ChatVisibility string

const (
	VisibilityPrivate ChatVisibility = "private"
	VisibilityPublic  ChatVisibility = "public"
)

func (v ChatVisibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

type Chat struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID    uuid.UUID      `gorm:"type:uuid;not null;index;column:owner_id" json:"owner_id"`
	Title      string         `gorm:"not null;column:title" json:"title"`
	Visibility ChatVisibility `gorm:"not null;default:'private';column:visibility" json:"visibility"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Chat) TableName() string {
	return "chat"
}
