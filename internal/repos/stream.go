package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/types"
)

type StreamRepo interface {
	Create(ctx context.Context, tx *gorm.DB, record *types.StreamRecord) (*types.StreamRecord, error)
	GetLatestByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.StreamRecord, error)
	DeleteByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error
}

type streamRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStreamRepo(db *gorm.DB, baseLog *logger.Logger) StreamRepo {
	return &streamRepo{db: db, log: baseLog.With("repo", "StreamRepo")}
}

func (sr *streamRepo) Create(ctx context.Context, tx *gorm.DB, record *types.StreamRecord) (*types.StreamRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	if record == nil || record.ID == uuid.Nil {
		return nil, errors.New("stream id required")
	}
	if err := transaction.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (sr *streamRepo) GetLatestByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) (*types.StreamRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	var record types.StreamRecord
	if err := transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (sr *streamRepo) DeleteByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	return transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&types.StreamRecord{}).Error
}
