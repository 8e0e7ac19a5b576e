package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/stream"
	"github.com/yungbote/chatstream-backend/internal/types"
)

type requestSuggestionsTool struct {
	log   *logger.Logger
	docs  repos.DocumentRepo
	gen   TextGenerator
	model string
}

func NewRequestSuggestionsTool(log *logger.Logger, docs repos.DocumentRepo, gen TextGenerator, model string) Tool {
	return &requestSuggestionsTool{
		log:   log.With("tool", "request_suggestions"),
		docs:  docs,
		gen:   gen,
		model: model,
	}
}

func (t *requestSuggestionsTool) Definition() Definition {
	return Definition{
		Name:        "request_suggestions",
		Description: "Request writing suggestions for an existing document",
		Parameters: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"document_id": map[string]any{"type": "string"},
			},
			"required": []string{"document_id"},
		},
		Requires: []string{"document_id"},
	}
}

func (t *requestSuggestionsTool) Invoke(ctx context.Context, sess Session, _ stream.Sink, callID string, input map[string]any) (any, error) {
	idStr, _ := input["document_id"].(string)
	docID, err := uuid.Parse(strings.TrimSpace(idStr))
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q", idStr)
	}

	doc, err := t.docs.GetByID(ctx, nil, docID)
	if err != nil {
		return nil, fmt.Errorf("document not found")
	}
	if doc.OwnerID != sess.UserID {
		return nil, fmt.Errorf("document belongs to another user")
	}

	// At-least-once delivery: a retried step must not duplicate suggestions.
	exists, err := t.docs.SuggestionsExistForToolCall(ctx, nil, callID)
	if err != nil {
		return nil, err
	}
	if exists {
		return map[string]any{"document_id": docID.String(), "message": "suggestions already generated"}, nil
	}

	raw, err := t.gen.GenerateText(ctx, t.model,
		`You suggest improvements to a document. Return ONLY a JSON array of objects with fields "original_text", "suggested_text", "description". At most 5 items.`,
		doc.Content)
	if err != nil {
		return nil, fmt.Errorf("suggestion generation failed: %w", err)
	}

	var items []struct {
		OriginalText  string `json:"original_text"`
		SuggestedText string `json:"suggested_text"`
		Description   string `json:"description"`
	}
	if err := json.Unmarshal([]byte(stripFence(raw)), &items); err != nil {
		return nil, fmt.Errorf("suggestion payload decode: %w", err)
	}

	suggestions := make([]*types.Suggestion, 0, len(items))
	for _, it := range items {
		suggestions = append(suggestions, &types.Suggestion{
			ID:            uuid.New(),
			DocumentID:    docID,
			OwnerID:       sess.UserID,
			OriginalText:  it.OriginalText,
			SuggestedText: it.SuggestedText,
			Description:   it.Description,
			ToolCallID:    callID,
		})
	}
	if err := t.docs.CreateSuggestions(ctx, nil, suggestions); err != nil {
		return nil, fmt.Errorf("suggestion persist failed: %w", err)
	}

	return map[string]any{
		"document_id": docID.String(),
		"count":       len(suggestions),
	}, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
