package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/chatstream-backend/internal/config"
	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/stream"
	"github.com/yungbote/chatstream-backend/internal/tools"
	"github.com/yungbote/chatstream-backend/internal/types"
)

const chatSystemPrompt = "You are a friendly assistant. Keep your responses concise and helpful."

type GenerationInput struct {
	ChatID  uuid.UUID
	UserID  uuid.UUID
	Model   config.ModelConfig
	History []*types.Message
}

// GenerationService drives the model over the conversation history, emitting
// stream events through the sink and returning the finalized assistant parts.
// It never emits the terminal event; that belongs to the caller, after
// persistence.
type GenerationService interface {
	Run(ctx context.Context, in GenerationInput, sink stream.Sink) ([]types.MessagePart, error)
}

type generationService struct {
	log      *logger.Logger
	model    ModelClient
	registry *tools.Registry
	maxSteps int
}

func NewGenerationService(log *logger.Logger, model ModelClient, registry *tools.Registry, maxSteps int) GenerationService {
	if maxSteps <= 0 {
		maxSteps = 5
	}
	return &generationService{
		log:      log.With("service", "GenerationService"),
		model:    model,
		registry: registry,
		maxSteps: maxSteps,
	}
}

func (gs *generationService) Run(ctx context.Context, in GenerationInput, sink stream.Sink) ([]types.MessagePart, error) {
	msgs := historyToModelMessages(in.History)

	// Reasoning models run with every tool disabled.
	var defs []ToolDefinition
	if !in.Model.Reasoning && gs.registry != nil {
		for _, d := range gs.registry.Definitions() {
			defs = append(defs, ToolDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			})
		}
	}

	var parts []types.MessagePart
	chunker := newWordChunker(sink)

	// One step is either a plain continuation or one round of tool calls;
	// the cap bounds tail latency and cost, truncation still ends normally.
	for step := 0; step < gs.maxSteps; step++ {
		res, err := gs.model.StreamChat(ctx, in.Model.Model, msgs, defs, func(d ModelDelta) error {
			if d.Reasoning != "" {
				return sink.Emit(ctx, stream.Event{Type: stream.EventReasoningDelta, Text: d.Reasoning})
			}
			return chunker.Write(ctx, d.Text)
		})
		if err != nil {
			gs.log.Warn("Model step failed", "chat_id", in.ChatID.String(), "step", step, "error", err)
			return nil, fmt.Errorf("model backend: %w", err)
		}
		if err := chunker.Flush(ctx); err != nil {
			return nil, err
		}

		if res.Reasoning != "" {
			parts = append(parts, types.MessagePart{Type: "reasoning", Text: res.Reasoning})
		}
		if res.Text != "" {
			parts = append(parts, types.MessagePart{Type: "text", Text: res.Text})
		}

		if len(res.ToolCalls) == 0 {
			return parts, nil
		}

		toolParts, followups, err := gs.runToolRound(ctx, in, sink, res)
		if err != nil {
			return nil, err
		}
		parts = append(parts, toolParts...)
		msgs = append(msgs, followups...)
	}

	gs.log.Debug("Step cap reached, truncating generation", "chat_id", in.ChatID.String(), "max_steps", gs.maxSteps)
	return parts, nil
}

type toolOutcome struct {
	call   ModelToolCall
	output json.RawMessage
	failed bool
}

// runToolRound executes one round of tool calls. Starts and results are
// emitted from this goroutine only (the sink is single-producer); the
// invocations themselves run in parallel.
func (gs *generationService) runToolRound(ctx context.Context, in GenerationInput, sink stream.Sink, res *ModelResult) ([]types.MessagePart, []ModelMessage, error) {
	sess := tools.Session{UserID: in.UserID, ChatID: in.ChatID}

	outcomes := make([]toolOutcome, len(res.ToolCalls))
	for i, call := range res.ToolCalls {
		outcomes[i].call = call
		if err := sink.Emit(ctx, stream.Event{
			Type:       stream.EventToolCallStart,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Input:      call.Arguments,
		}); err != nil {
			return nil, nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range outcomes {
		i := i
		g.Go(func() error {
			out := &outcomes[i]
			payload, err := gs.invokeTool(gctx, sess, sink, out.call)
			if err != nil {
				// Recovered locally: a failed tool call becomes a failure
				// payload, never a dead stream.
				gs.log.Warn("Tool invocation failed", "tool", out.call.Name, "error", err)
				out.failed = true
				raw, _ := json.Marshal(map[string]string{"error": err.Error()})
				out.output = raw
				return nil
			}
			out.output = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var parts []types.MessagePart
	assistantMsg := ModelMessage{Role: "assistant", Content: res.Text}
	var toolMsgs []ModelMessage

	for _, out := range outcomes {
		if err := sink.Emit(ctx, stream.Event{
			Type:       stream.EventToolCallResult,
			ToolCallID: out.call.ID,
			ToolName:   out.call.Name,
			Output:     out.output,
			IsError:    out.failed,
		}); err != nil {
			return nil, nil, err
		}

		parts = append(parts,
			types.MessagePart{
				Type:       "tool-call",
				ToolCallID: out.call.ID,
				ToolName:   out.call.Name,
				Input:      out.call.Arguments,
			},
			types.MessagePart{
				Type:       "tool-result",
				ToolCallID: out.call.ID,
				ToolName:   out.call.Name,
				Output:     out.output,
				IsError:    out.failed,
			},
		)

		assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, wireToolCall{
			ID:   out.call.ID,
			Type: "function",
			Function: wireFunction{
				Name:      out.call.Name,
				Arguments: string(out.call.Arguments),
			},
		})
		toolMsgs = append(toolMsgs, ModelMessage{
			Role:       "tool",
			Content:    string(out.output),
			ToolCallID: out.call.ID,
		})
	}

	followups := append([]ModelMessage{assistantMsg}, toolMsgs...)
	return parts, followups, nil
}

func (gs *generationService) invokeTool(ctx context.Context, sess tools.Session, sink stream.Sink, call ModelToolCall) (json.RawMessage, error) {
	tool, ok := gs.registry.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}
	def := tool.Definition()
	input, err := tools.DecodeInput(call.Arguments, def)
	if err != nil {
		return nil, err
	}
	result, err := tool.Invoke(ctx, sess, sink, call.ID, input)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("tool result encode: %w", err)
	}
	return raw, nil
}

func historyToModelMessages(history []*types.Message) []ModelMessage {
	msgs := []ModelMessage{{Role: "system", Content: chatSystemPrompt}}
	for _, m := range history {
		role := string(m.Role)
		switch m.Role {
		case types.RoleUser, types.RoleAssistant, types.RoleSystem:
		default:
			continue
		}
		parts, err := m.DecodeParts()
		if err != nil {
			continue
		}
		var texts []string
		for _, p := range parts {
			if p.Type == "text" && strings.TrimSpace(p.Text) != "" {
				texts = append(texts, p.Text)
			}
		}
		if len(texts) == 0 {
			continue
		}
		msgs = append(msgs, ModelMessage{Role: role, Content: strings.Join(texts, "\n\n")})
	}
	return msgs
}

// wordChunker rebuffers arbitrary upstream deltas into word-granularity
// events for smoother perceived delivery.
type wordChunker struct {
	sink stream.Sink
	buf  string
}

func newWordChunker(sink stream.Sink) *wordChunker {
	return &wordChunker{sink: sink}
}

func (c *wordChunker) Write(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	c.buf += text
	for {
		idx := strings.IndexAny(c.buf, " \t\n")
		if idx < 0 {
			return nil
		}
		chunk := c.buf[:idx+1]
		c.buf = c.buf[idx+1:]
		if err := c.sink.Emit(ctx, stream.Event{Type: stream.EventTextDelta, Text: chunk}); err != nil {
			return err
		}
	}
}

func (c *wordChunker) Flush(ctx context.Context) error {
	if c.buf == "" {
		return nil
	}
	chunk := c.buf
	c.buf = ""
	return c.sink.Emit(ctx, stream.Event{Type: stream.EventTextDelta, Text: chunk})
}
