package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/apierr"
	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/types"
)

const maxTitleLength = 120

// ChatService owns chat and message persistence plus the ownership rules
// around them. Reads on private chats and all writes are owner-only;
// ownership failures on reads surface as forbidden, never as not_found.
type ChatService interface {
	CreateChat(ctx context.Context, chatID, ownerID uuid.UUID, firstUserText string, visibility types.ChatVisibility) (*types.Chat, error)
	GetChat(ctx context.Context, chatID, requesterID uuid.UUID) (*types.Chat, error)
	ListChatsByUser(ctx context.Context, ownerID uuid.UUID, limit int) ([]*types.Chat, error)
	GetMessagesByChat(ctx context.Context, chatID, requesterID uuid.UUID) ([]*types.Message, error)
	AppendMessages(ctx context.Context, messages []*types.Message) ([]*types.Message, error)
	UpdateChatVisibility(ctx context.Context, chatID, requesterID uuid.UUID, visibility types.ChatVisibility) error
	DeleteChat(ctx context.Context, chatID, requesterID uuid.UUID) error
	LatestStream(ctx context.Context, chatID uuid.UUID) (*types.StreamRecord, error)
}

type chatService struct {
	log       *logger.Logger
	db        *gorm.DB
	chats     repos.ChatRepo
	messages  repos.MessageRepo
	streams   repos.StreamRepo
	documents repos.DocumentRepo
}

func NewChatService(log *logger.Logger, db *gorm.DB, chats repos.ChatRepo, messages repos.MessageRepo, streams repos.StreamRepo, documents repos.DocumentRepo) ChatService {
	return &chatService{
		log:       log.With("service", "ChatService"),
		db:        db,
		chats:     chats,
		messages:  messages,
		streams:   streams,
		documents: documents,
	}
}

// deriveTitle produces the chat title from the first user message. The model
// is not consulted; truncation keeps titles bounded.
func deriveTitle(text string) string {
	title := strings.TrimSpace(text)
	if title == "" {
		return "New chat"
	}
	if line, _, found := strings.Cut(title, "\n"); found {
		title = strings.TrimSpace(line)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		runes := []rune(title)
		title = string(runes[:maxTitleLength])
	}
	return title
}

// CreateChat accepts a client-supplied chat id so the first message and the
// chat can share an identifier; a nil id gets a fresh one.
func (cs *chatService) CreateChat(ctx context.Context, chatID, ownerID uuid.UUID, firstUserText string, visibility types.ChatVisibility) (*types.Chat, error) {
	if chatID == uuid.Nil {
		chatID = uuid.New()
	}
	if !visibility.Valid() {
		visibility = types.VisibilityPrivate
	}
	chat := &types.Chat{
		ID:         chatID,
		OwnerID:    ownerID,
		Title:      deriveTitle(firstUserText),
		Visibility: visibility,
	}
	created, err := cs.chats.Create(ctx, nil, chat)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("create chat: %w", err))
	}
	cs.log.Info("Chat created", "chat_id", created.ID.String(), "owner_id", ownerID.String())
	return created, nil
}

// GetChat enforces visibility: public chats are readable by anyone, private
// chats only by their owner.
func (cs *chatService) GetChat(ctx context.Context, chatID, requesterID uuid.UUID) (*types.Chat, error) {
	chat, err := cs.chats.GetByID(ctx, nil, chatID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("chat %s not found", chatID))
		}
		return nil, apierr.Internal(fmt.Errorf("get chat: %w", err))
	}
	if chat.Visibility != types.VisibilityPublic && chat.OwnerID != requesterID {
		return nil, apierr.Forbidden(fmt.Errorf("chat %s is private", chatID))
	}
	return chat, nil
}

func (cs *chatService) ListChatsByUser(ctx context.Context, ownerID uuid.UUID, limit int) ([]*types.Chat, error) {
	chats, err := cs.chats.ListByOwner(ctx, nil, ownerID, limit)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list chats: %w", err))
	}
	return chats, nil
}

func (cs *chatService) GetMessagesByChat(ctx context.Context, chatID, requesterID uuid.UUID) ([]*types.Message, error) {
	if _, err := cs.GetChat(ctx, chatID, requesterID); err != nil {
		return nil, err
	}
	messages, err := cs.messages.ListByChat(ctx, nil, chatID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list messages: %w", err))
	}
	return messages, nil
}

func (cs *chatService) AppendMessages(ctx context.Context, messages []*types.Message) ([]*types.Message, error) {
	saved, err := cs.messages.AppendBatch(ctx, nil, messages)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("append messages: %w", err))
	}
	return saved, nil
}

func (cs *chatService) UpdateChatVisibility(ctx context.Context, chatID, requesterID uuid.UUID, visibility types.ChatVisibility) error {
	if !visibility.Valid() {
		return apierr.BadRequest(fmt.Errorf("invalid visibility %q", visibility))
	}
	chat, err := cs.chats.GetByID(ctx, nil, chatID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return apierr.NotFound(fmt.Errorf("chat %s not found", chatID))
		}
		return apierr.Internal(fmt.Errorf("get chat: %w", err))
	}
	if chat.OwnerID != requesterID {
		return apierr.Forbidden(fmt.Errorf("chat %s is not owned by requester", chatID))
	}
	if err := cs.chats.UpdateVisibility(ctx, nil, chatID, visibility); err != nil {
		return apierr.Internal(fmt.Errorf("update visibility: %w", err))
	}
	return nil
}

// DeleteChat removes the chat and all dependent rows in one transaction.
// Ownership is checked before any row is touched; a second delete of the same
// chat reports not_found.
func (cs *chatService) DeleteChat(ctx context.Context, chatID, requesterID uuid.UUID) error {
	chat, err := cs.chats.GetByID(ctx, nil, chatID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return apierr.NotFound(fmt.Errorf("chat %s not found", chatID))
		}
		return apierr.Internal(fmt.Errorf("get chat: %w", err))
	}
	if chat.OwnerID != requesterID {
		return apierr.Forbidden(fmt.Errorf("chat %s is not owned by requester", chatID))
	}
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := cs.documents.DeleteByChat(ctx, tx, chatID); err != nil {
			return err
		}
		if err := cs.streams.DeleteByChat(ctx, tx, chatID); err != nil {
			return err
		}
		if err := cs.messages.DeleteByChat(ctx, tx, chatID); err != nil {
			return err
		}
		return cs.chats.Delete(ctx, tx, chatID)
	})
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return apierr.NotFound(fmt.Errorf("chat %s not found", chatID))
		}
		return apierr.Internal(fmt.Errorf("delete chat: %w", err))
	}
	cs.log.Info("Chat deleted", "chat_id", chatID.String(), "owner_id", requesterID.String())
	return nil
}

func (cs *chatService) LatestStream(ctx context.Context, chatID uuid.UUID) (*types.StreamRecord, error) {
	record, err := cs.streams.GetLatestByChat(ctx, nil, chatID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Errorf("no stream for chat %s", chatID))
		}
		return nil, apierr.Internal(fmt.Errorf("latest stream: %w", err))
	}
	return record, nil
}
