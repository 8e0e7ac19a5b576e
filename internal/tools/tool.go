package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/stream"
)

// Session scopes a tool invocation to the authenticated caller and chat.
type Session struct {
	UserID uuid.UUID
	ChatID uuid.UUID
}

// Definition is the schema a tool advertises to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	// Required input fields, checked before Invoke.
	Requires []string
}

// Tool is one capability the model may invoke mid-generation. Invocations
// receive the stream's event sink so long-running tools can surface progress
// through the same channel as the generation itself.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, sess Session, sink stream.Sink, callID string, input map[string]any) (any, error)
}

type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		name := t.Definition().Name
		if _, exists := r.tools[name]; exists {
			continue
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[strings.TrimSpace(name)]
	return t, ok
}

func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition())
	}
	return out
}

// DecodeInput parses raw tool arguments and checks declared required fields.
func DecodeInput(raw json.RawMessage, def Definition) (map[string]any, error) {
	input := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &input); err != nil {
			return nil, fmt.Errorf("tool input is not valid JSON: %w", err)
		}
	}
	for _, field := range def.Requires {
		v, ok := input[field]
		if !ok || v == nil {
			return nil, fmt.Errorf("tool input missing required field %q", field)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("tool input missing required field %q", field)
		}
	}
	return input, nil
}

// IdempotentID derives a stable uuid from a tool call id so retried
// invocations land on the same rows.
func IdempotentID(callID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("tool-call:"+callID))
}
