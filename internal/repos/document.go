package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/types"
)

type DocumentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error)
	GetByID(ctx context.Context, tx *gorm.DB, docID uuid.UUID) (*types.Document, error)
	UpdateContent(ctx context.Context, tx *gorm.DB, docID uuid.UUID, content string) error
	DeleteByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error
	CreateSuggestions(ctx context.Context, tx *gorm.DB, suggestions []*types.Suggestion) error
	SuggestionsExistForToolCall(ctx context.Context, tx *gorm.DB, toolCallID string) (bool, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (dr *documentRepo) Upsert(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	if doc == nil || doc.ID == uuid.Nil {
		return nil, errors.New("document id required")
	}
	// Save keeps document tool retries idempotent: the same id lands on the
	// same row.
	if err := transaction.WithContext(ctx).Save(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (dr *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, docID uuid.UUID) (*types.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	var doc types.Document
	if err := transaction.WithContext(ctx).
		Where("id = ?", docID).
		First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (dr *documentRepo) UpdateContent(ctx context.Context, tx *gorm.DB, docID uuid.UUID, content string) error {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ?", docID).
		Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (dr *documentRepo) DeleteByChat(ctx context.Context, tx *gorm.DB, chatID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	docIDs := transaction.WithContext(ctx).
		Model(&types.Document{}).
		Select("id").
		Where("chat_id = ?", chatID)
	if err := transaction.WithContext(ctx).
		Where("document_id IN (?)", docIDs).
		Delete(&types.Suggestion{}).Error; err != nil {
		return err
	}
	return transaction.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&types.Document{}).Error
}

func (dr *documentRepo) CreateSuggestions(ctx context.Context, tx *gorm.DB, suggestions []*types.Suggestion) error {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	if len(suggestions) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&suggestions).Error
}

func (dr *documentRepo) SuggestionsExistForToolCall(ctx context.Context, tx *gorm.DB, toolCallID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = dr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Suggestion{}).
		Where("tool_call_id = ?", toolCallID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
