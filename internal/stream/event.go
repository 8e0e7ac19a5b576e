package stream

import "encoding/json"

type EventType string

const (
	EventTextDelta      EventType = "text-delta"
	EventReasoningDelta EventType = "reasoning-delta"
	EventToolCallStart  EventType = "tool-call-start"
	EventToolCallResult EventType = "tool-call-result"
	EventError          EventType = "error"
	EventDone           EventType = "done"
)

// Event is one ordered, immutable unit of generated output. Seq is assigned
// by the publisher when the event enters a stream's log; producers leave it
// zero.
type Event struct {
	Seq        int64           `json:"seq"`
	Type       EventType       `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Terminal reports whether the event closes its stream's log.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
