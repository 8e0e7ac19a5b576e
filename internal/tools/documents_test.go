package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/types"
)

// fakeDocumentRepo keeps documents and suggestions in maps.
type fakeDocumentRepo struct {
	docs        map[uuid.UUID]*types.Document
	suggestions []*types.Suggestion
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: make(map[uuid.UUID]*types.Document)}
}

func (f *fakeDocumentRepo) Upsert(_ context.Context, _ *gorm.DB, doc *types.Document) (*types.Document, error) {
	cp := *doc
	f.docs[doc.ID] = &cp
	return &cp, nil
}

func (f *fakeDocumentRepo) GetByID(_ context.Context, _ *gorm.DB, docID uuid.UUID) (*types.Document, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocumentRepo) UpdateContent(_ context.Context, _ *gorm.DB, docID uuid.UUID, content string) error {
	doc, ok := f.docs[docID]
	if !ok {
		return errors.New("record not found")
	}
	doc.Content = content
	return nil
}

func (f *fakeDocumentRepo) DeleteByChat(_ context.Context, _ *gorm.DB, chatID uuid.UUID) error {
	for id, doc := range f.docs {
		if doc.ChatID == chatID {
			delete(f.docs, id)
		}
	}
	return nil
}

func (f *fakeDocumentRepo) CreateSuggestions(_ context.Context, _ *gorm.DB, suggestions []*types.Suggestion) error {
	f.suggestions = append(f.suggestions, suggestions...)
	return nil
}

func (f *fakeDocumentRepo) SuggestionsExistForToolCall(_ context.Context, _ *gorm.DB, toolCallID string) (bool, error) {
	for _, s := range f.suggestions {
		if s.ToolCallID == toolCallID {
			return true, nil
		}
	}
	return false, nil
}

// cannedGenerator returns a fixed completion and records prompts.
type cannedGenerator struct {
	output  string
	systems []string
}

func (g *cannedGenerator) GenerateText(_ context.Context, _ string, system, _ string) (string, error) {
	g.systems = append(g.systems, system)
	return g.output, nil
}

func TestCreateDocumentToolIsIdempotent(t *testing.T) {
	repo := newFakeDocumentRepo()
	gen := &cannedGenerator{output: "# Draft\n\nbody"}
	tool := NewCreateDocumentTool(testLogger(t), repo, gen, "test-model")
	sess := Session{UserID: uuid.New(), ChatID: uuid.New()}
	input := map[string]any{"title": "Trip notes", "kind": "text"}

	out1, err := tool.Invoke(context.Background(), sess, nil, "call_1", input)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	out2, err := tool.Invoke(context.Background(), sess, nil, "call_1", input)
	if err != nil {
		t.Fatalf("retried Invoke: %v", err)
	}

	id1 := out1.(map[string]any)["id"]
	id2 := out2.(map[string]any)["id"]
	if id1 != id2 {
		t.Fatalf("retry created a second document: %v vs %v", id1, id2)
	}
	if len(repo.docs) != 1 {
		t.Fatalf("repo holds %d documents, want 1", len(repo.docs))
	}
	for _, doc := range repo.docs {
		if doc.OwnerID != sess.UserID || doc.ChatID != sess.ChatID {
			t.Fatalf("ownership not recorded: %+v", doc)
		}
		if doc.Content != "# Draft\n\nbody" {
			t.Fatalf("content = %q", doc.Content)
		}
	}
}

func TestCreateDocumentToolRejectsUnknownKind(t *testing.T) {
	tool := NewCreateDocumentTool(testLogger(t), newFakeDocumentRepo(), &cannedGenerator{}, "m")
	_, err := tool.Invoke(context.Background(), Session{UserID: uuid.New()}, nil, "c", map[string]any{
		"title": "x", "kind": "video",
	})
	if err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestUpdateDocumentToolEnforcesOwnership(t *testing.T) {
	repo := newFakeDocumentRepo()
	owner := uuid.New()
	docID := uuid.New()
	repo.docs[docID] = &types.Document{ID: docID, OwnerID: owner, Title: "t", Kind: types.DocumentKindText, Content: "old"}

	gen := &cannedGenerator{output: "new content"}
	tool := NewUpdateDocumentTool(testLogger(t), repo, gen, "m")

	// Stranger is rejected before any generation happens.
	if _, err := tool.Invoke(context.Background(), Session{UserID: uuid.New()}, nil, "c", map[string]any{
		"id": docID.String(), "description": "rewrite",
	}); err == nil {
		t.Fatal("stranger update accepted")
	}
	if len(gen.systems) != 0 {
		t.Fatal("generation ran for a forbidden update")
	}

	if _, err := tool.Invoke(context.Background(), Session{UserID: owner}, nil, "c", map[string]any{
		"id": docID.String(), "description": "rewrite",
	}); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if repo.docs[docID].Content != "new content" {
		t.Fatalf("content = %q", repo.docs[docID].Content)
	}
}

func TestRequestSuggestionsToolDedupesByCallID(t *testing.T) {
	repo := newFakeDocumentRepo()
	owner := uuid.New()
	docID := uuid.New()
	repo.docs[docID] = &types.Document{ID: docID, OwnerID: owner, Title: "t", Kind: types.DocumentKindText, Content: "some prose"}

	gen := &cannedGenerator{output: "```json\n[{\"original_text\":\"some\",\"suggested_text\":\"certain\",\"description\":\"precision\"}]\n```"}
	tool := NewRequestSuggestionsTool(testLogger(t), repo, gen, "m")
	sess := Session{UserID: owner}
	input := map[string]any{"document_id": docID.String()}

	if _, err := tool.Invoke(context.Background(), sess, nil, "call_s", input); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(repo.suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(repo.suggestions))
	}
	if repo.suggestions[0].SuggestedText != "certain" {
		t.Fatalf("suggestion = %+v", repo.suggestions[0])
	}

	// Same call id again: no new rows.
	if _, err := tool.Invoke(context.Background(), sess, nil, "call_s", input); err != nil {
		t.Fatalf("retried Invoke: %v", err)
	}
	if len(repo.suggestions) != 1 {
		t.Fatalf("retry duplicated suggestions: %d", len(repo.suggestions))
	}
}

func TestStripFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare", in: `[1]`, want: `[1]`},
		{name: "fenced", in: "```json\n[1]\n```", want: `[1]`},
		{name: "fenced_no_lang", in: "```\n[1]\n```", want: `[1]`},
		{name: "padded", in: "  ```json\n[1]\n```  ", want: `[1]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripFence(tc.in); got != tc.want {
				t.Fatalf("stripFence(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
	if got := stripFence("```[1]```"); !strings.Contains(got, "[1]") {
		t.Fatalf("single-line fence mangled: %q", got)
	}
}
