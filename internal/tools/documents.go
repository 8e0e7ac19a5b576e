package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/stream"
	"github.com/yungbote/chatstream-backend/internal/types"
)

// TextGenerator is the slice of the model client the document tools need.
type TextGenerator interface {
	GenerateText(ctx context.Context, model string, system, user string) (string, error)
}

type createDocumentTool struct {
	log   *logger.Logger
	docs  repos.DocumentRepo
	gen   TextGenerator
	model string
}

func NewCreateDocumentTool(log *logger.Logger, docs repos.DocumentRepo, gen TextGenerator, model string) Tool {
	return &createDocumentTool{
		log:   log.With("tool", "create_document"),
		docs:  docs,
		gen:   gen,
		model: model,
	}
}

func (t *createDocumentTool) Definition() Definition {
	return Definition{
		Name:        "create_document",
		Description: "Create a document for writing or content creation activities",
		Parameters: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"title": map[string]any{"type": "string"},
				"kind":  map[string]any{"type": "string", "enum": []string{"text", "code", "sheet"}},
			},
			"required": []string{"title", "kind"},
		},
		Requires: []string{"title", "kind"},
	}
}

func (t *createDocumentTool) Invoke(ctx context.Context, sess Session, _ stream.Sink, callID string, input map[string]any) (any, error) {
	title, _ := input["title"].(string)
	kindStr, _ := input["kind"].(string)
	kind := types.DocumentKind(strings.TrimSpace(kindStr))
	switch kind {
	case types.DocumentKindText, types.DocumentKindCode, types.DocumentKindSheet:
	default:
		return nil, fmt.Errorf("unsupported document kind %q", kindStr)
	}

	content, err := t.gen.GenerateText(ctx, t.model,
		draftSystemPrompt(kind),
		"Write about the following topic: "+title)
	if err != nil {
		return nil, fmt.Errorf("document draft failed: %w", err)
	}

	// The document id derives from the tool call id, so a retried step
	// updates the same row instead of creating a duplicate.
	doc := &types.Document{
		ID:      IdempotentID(callID),
		OwnerID: sess.UserID,
		ChatID:  sess.ChatID,
		Title:   title,
		Kind:    kind,
		Content: content,
	}
	if _, err := t.docs.Upsert(ctx, nil, doc); err != nil {
		return nil, fmt.Errorf("document create failed: %w", err)
	}

	return map[string]any{
		"id":    doc.ID.String(),
		"title": doc.Title,
		"kind":  string(doc.Kind),
	}, nil
}

func draftSystemPrompt(kind types.DocumentKind) string {
	switch kind {
	case types.DocumentKindCode:
		return "You are a code generator. Produce a single self-contained snippet with brief comments. Output only the code."
	case types.DocumentKindSheet:
		return "You are a spreadsheet generator. Produce CSV with a meaningful header row. Output only the CSV."
	default:
		return "You are a writing assistant. Write markdown about the given topic. Use headings where they help."
	}
}

type updateDocumentTool struct {
	log   *logger.Logger
	docs  repos.DocumentRepo
	gen   TextGenerator
	model string
}

func NewUpdateDocumentTool(log *logger.Logger, docs repos.DocumentRepo, gen TextGenerator, model string) Tool {
	return &updateDocumentTool{
		log:   log.With("tool", "update_document"),
		docs:  docs,
		gen:   gen,
		model: model,
	}
}

func (t *updateDocumentTool) Definition() Definition {
	return Definition{
		Name:        "update_document",
		Description: "Update an existing document with the described changes",
		Parameters: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"id":          map[string]any{"type": "string", "description": "Document id"},
				"description": map[string]any{"type": "string", "description": "Change to apply"},
			},
			"required": []string{"id", "description"},
		},
		Requires: []string{"id", "description"},
	}
}

func (t *updateDocumentTool) Invoke(ctx context.Context, sess Session, _ stream.Sink, _ string, input map[string]any) (any, error) {
	idStr, _ := input["id"].(string)
	description, _ := input["description"].(string)

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

	content, err := t.gen.GenerateText(ctx, t.model,
		"Rewrite the given document applying the requested change. Output only the full updated document.",
		fmt.Sprintf("Document:\n%s\n\nRequested change: %s", doc.Content, description))
	if err != nil {
		return nil, fmt.Errorf("document update failed: %w", err)
	}

	if err := t.docs.UpdateContent(ctx, nil, docID, content); err != nil {
		return nil, fmt.Errorf("document update failed: %w", err)
	}

	return map[string]any{
		"id":      doc.ID.String(),
		"title":   doc.Title,
		"message": "document updated",
	}, nil
}
