package types

import (
	"time"

	"github.com/google/uuid"
)

type UserTier string

const (
	TierGuest      UserTier = "guest"
	TierRegistered UserTier = "registered"
)

func (t UserTier) Valid() bool {
	return t == TierGuest || t == TierRegistered
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password  string    `gorm:"column:password" json:"-"`
	Tier      UserTier  `gorm:"not null;default:'registered';column:tier" json:"tier"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}
