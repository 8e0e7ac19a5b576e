package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/apierr"
	"github.com/yungbote/chatstream-backend/internal/config"
	"github.com/yungbote/chatstream-backend/internal/http/response"
	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/requestdata"
	"github.com/yungbote/chatstream-backend/internal/services"
	"github.com/yungbote/chatstream-backend/internal/sse"
	"github.com/yungbote/chatstream-backend/internal/stream"
	"github.com/yungbote/chatstream-backend/internal/types"
)

type ChatHandler struct {
	log        *logger.Logger
	cfg        *config.Config
	chats      services.ChatService
	quota      services.QuotaService
	generation services.GenerationService
	registry   stream.Registry
}

func NewChatHandler(log *logger.Logger, cfg *config.Config, chats services.ChatService, quota services.QuotaService, generation services.GenerationService, registry stream.Registry) *ChatHandler {
	return &ChatHandler{
		log:        log.With("handler", "ChatHandler"),
		cfg:        cfg,
		chats:      chats,
		quota:      quota,
		generation: generation,
		registry:   registry,
	}
}

type postChatRequest struct {
	ID      string `json:"id"`
	Message struct {
		ID    string              `json:"id"`
		Parts []types.MessagePart `json:"parts"`
	} `json:"message"`
	SelectedChatModel  string `json:"selectedChatModel"`
	SelectedVisibility string `json:"selectedVisibilityType"`
}

func firstText(parts []types.MessagePart) string {
	for _, p := range parts {
		if p.Type == "text" && strings.TrimSpace(p.Text) != "" {
			return p.Text
		}
	}
	return ""
}

// Post runs one generation turn: quota gate, chat resolution, user-message
// persistence, then a registered stream whose feed is served as SSE on this
// same response. Errors before the stream starts are plain JSON; everything
// after first byte travels in-band as an error event.
func (ch *ChatHandler) Post(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondAPIError(c, apierr.Unauthorized(errors.New("missing request identity")))
		return
	}

	var req postChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid request body")))
		return
	}
	chatID, err := uuid.Parse(req.ID)
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest(fmt.Errorf("invalid chat id %q", req.ID)))
		return
	}
	messageID, err := uuid.Parse(req.Message.ID)
	if err != nil {
		messageID = uuid.New()
	}
	userText := firstText(req.Message.Parts)
	if userText == "" {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("message has no text part")))
		return
	}
	model, ok := ch.cfg.ModelBySelector(req.SelectedChatModel)
	if !ok {
		response.RespondAPIError(c, apierr.BadRequest(fmt.Errorf("unknown model %q", req.SelectedChatModel)))
		return
	}

	ctx := c.Request.Context()

	// Quota counts prior messages only; the incoming one is not persisted yet.
	if err := ch.quota.Check(ctx, rd.UserID, rd.Tier); err != nil {
		response.RespondAPIError(c, err)
		return
	}

	chat, err := ch.chats.GetChat(ctx, chatID, rd.UserID)
	switch {
	case err == nil:
		if chat.OwnerID != rd.UserID {
			response.RespondAPIError(c, apierr.Forbidden(errors.New("cannot post to another user's chat")))
			return
		}
	case apierr.From(err).Code == apierr.CodeNotFound:
		chat, err = ch.chats.CreateChat(ctx, chatID, rd.UserID, userText, types.ChatVisibility(req.SelectedVisibility))
		if err != nil {
			response.RespondAPIError(c, err)
			return
		}
	default:
		response.RespondAPIError(c, err)
		return
	}

	history, err := ch.chats.GetMessagesByChat(ctx, chat.ID, rd.UserID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	parts, err := types.EncodeParts(req.Message.Parts)
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest(fmt.Errorf("encode message parts: %w", err)))
		return
	}
	userMessage := &types.Message{
		ID:     messageID,
		ChatID: chat.ID,
		Role:   types.RoleUser,
		Parts:  parts,
	}
	if _, err := ch.chats.AppendMessages(ctx, []*types.Message{userMessage}); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	history = append(history, userMessage)

	streamID := uuid.New()
	if err := ch.registry.Register(ctx, streamID, chat.ID); err != nil {
		response.RespondAPIError(c, apierr.Internal(fmt.Errorf("register stream: %w", err)))
		return
	}

	userID := rd.UserID
	produce := func(pctx context.Context, sink stream.Sink) error {
		assistantParts, err := ch.generation.Run(pctx, services.GenerationInput{
			ChatID:  chat.ID,
			UserID:  userID,
			Model:   model,
			History: history,
		}, sink)
		if err != nil {
			return err
		}
		encoded, err := types.EncodeParts(assistantParts)
		if err != nil {
			return fmt.Errorf("encode assistant parts: %w", err)
		}
		assistant := &types.Message{
			ID:     uuid.New(),
			ChatID: chat.ID,
			Role:   types.RoleAssistant,
			Parts:  encoded,
		}
		// Persist before the registry emits done, so a consumer that saw
		// the terminal event can always re-read the finished message.
		if _, err := ch.chats.AppendMessages(pctx, []*types.Message{assistant}); err != nil {
			return fmt.Errorf("persist assistant message: %w", err)
		}
		return nil
	}

	feed, err := ch.registry.Publish(ctx, streamID, produce)
	if err != nil {
		response.RespondAPIError(c, apierr.Internal(fmt.Errorf("publish stream: %w", err)))
		return
	}
	sse.Stream(c, feed, ch.log)
}

// Resume reattaches to the chat's most recent stream. Without a durable
// relay there is nothing to replay; 204 tells the client to fall back to
// fetching the persisted messages.
func (ch *ChatHandler) Resume(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondAPIError(c, apierr.Unauthorized(errors.New("missing request identity")))
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid chat id")))
		return
	}
	if _, err := ch.chats.GetChat(c.Request.Context(), chatID, rd.UserID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if !ch.registry.Resumable() {
		c.Status(http.StatusNoContent)
		return
	}
	record, err := ch.chats.LatestStream(c.Request.Context(), chatID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	feed, err := ch.registry.Attach(c.Request.Context(), record.ID)
	if err != nil {
		if errors.Is(err, stream.ErrNotResumable) {
			c.Status(http.StatusNoContent)
			return
		}
		response.RespondAPIError(c, apierr.Internal(fmt.Errorf("attach stream: %w", err)))
		return
	}
	sse.Stream(c, feed, ch.log)
}

func (ch *ChatHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondAPIError(c, apierr.Unauthorized(errors.New("missing request identity")))
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid chat id")))
		return
	}
	chat, err := ch.chats.GetChat(c.Request.Context(), chatID, rd.UserID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	messages, err := ch.chats.GetMessagesByChat(c.Request.Context(), chatID, rd.UserID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chat": chat, "messages": messages})
}

func (ch *ChatHandler) History(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondAPIError(c, apierr.Unauthorized(errors.New("missing request identity")))
		return
	}
	chats, err := ch.chats.ListChatsByUser(c.Request.Context(), rd.UserID, 100)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"chats": chats})
}

func (ch *ChatHandler) UpdateVisibility(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondAPIError(c, apierr.Unauthorized(errors.New("missing request identity")))
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid chat id")))
		return
	}
	var req struct {
		Visibility string `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid request body")))
		return
	}
	if err := ch.chats.UpdateChatVisibility(c.Request.Context(), chatID, rd.UserID, types.ChatVisibility(req.Visibility)); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

func (ch *ChatHandler) Delete(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		response.RespondAPIError(c, apierr.Unauthorized(errors.New("missing request identity")))
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest(errors.New("invalid chat id")))
		return
	}
	if err := ch.chats.DeleteChat(c.Request.Context(), chatID, rd.UserID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}
