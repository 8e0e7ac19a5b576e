package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/types"
)

type MessageRepo interface {
	// AppendBatch writes the batch atomically; duplicate ids fail the whole
	// batch rather than overwriting.
	AppendBatch(ctx context.Context, tx *gorm.DB, messages []*types.Message) ([]*types.Message, error)
	ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) ([]*types.Message, error)
	CountByOwnerSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, role types.MessageRole, since time.Time) (int64, error)
	DeleteByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (mr *messageRepo) AppendBatch(ctx context.Context, tx *gorm.DB, messages []*types.Message) ([]*types.Message, error) {
	if len(messages) == 0 {
		return []*types.Message{}, nil
	}
	for _, m := range messages {
		if m == nil || m.ID == uuid.Nil {
			return nil, errors.New("message id required")
		}
	}
	run := func(t *gorm.DB) error {
		// Seq is assigned here, per chat, so the created_at tie-break holds
		// regardless of what the caller put in the structs.
		next := make(map[uuid.UUID]int64)
		for _, m := range messages {
			if _, ok := next[m.ChatID]; !ok {
				var highest int64
				if err := t.WithContext(ctx).
					Model(&types.Message{}).
					Where("chat_id = ?", m.ChatID).
					Select("COALESCE(MAX(seq), 0)").
					Scan(&highest).Error; err != nil {
					return err
				}
				next[m.ChatID] = highest
			}
			next[m.ChatID]++
			m.Seq = next[m.ChatID]
		}
		return t.WithContext(ctx).Create(&messages).Error
	}
	if tx != nil {
		if err := run(tx); err != nil {
			return nil, err
		}
		return messages, nil
	}
	if err := mr.db.WithContext(ctx).Transaction(run); err != nil {
		return nil, err
	}
	return messages, nil
}

func (mr *messageRepo) ListByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var results []*types.Message
	if err := transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (mr *messageRepo) CountByOwnerSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, role types.MessageRole, since time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Joins(`JOIN "chat" ON "chat"."id" = "message"."chat_id"`).
		Where(`"chat"."owner_id" = ?`, ownerID).
		Where(`"message"."role" = ?`, role).
		Where(`"message"."created_at" >= ?`, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (mr *messageRepo) DeleteByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	return transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&types.Message{}).Error
}
