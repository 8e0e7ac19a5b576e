package types

import (
	"time"

	"github.com/google/uuid"
)

// StreamRecord is the durable handle for one generation attempt. A chat
// accumulates one record per attempt; the newest one is the resume target.
type StreamRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID    uuid.UUID `gorm:"type:uuid;not null;index;column:chat_id" json:"chat_id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (StreamRecord) TableName() string {
	return "stream_record"
}
