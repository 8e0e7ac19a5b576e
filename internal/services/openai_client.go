package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/chatstream-backend/internal/config"
	"github.com/yungbote/chatstream-backend/internal/logger"
)

// ModelMessage is one turn of model context in chat-completions shape.
type ModelMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is a tool as advertised to the model backend.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ModelToolCall is a fully accumulated tool-call request from the model.
type ModelToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ModelDelta is one streamed increment; at most one field is set.
type ModelDelta struct {
	Text      string
	Reasoning string
}

// ModelResult is the outcome of one model step.
type ModelResult struct {
	Text         string
	Reasoning    string
	ToolCalls    []ModelToolCall
	FinishReason string
}

type ModelClient interface {
	// StreamChat streams one completion; onDelta observes text/reasoning
	// increments as they arrive, tool calls are accumulated into the result.
	StreamChat(ctx context.Context, model string, messages []ModelMessage, tools []ToolDefinition, onDelta func(ModelDelta) error) (*ModelResult, error)
	// GenerateText runs a non-streaming completion (used by document tools).
	GenerateText(ctx context.Context, model string, system, user string) (string, error)
}

type openAIClient struct {
	log           *logger.Logger
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	streamTimeout time.Duration
	maxRetries    int
}

func NewOpenAIClient(log *logger.Logger, cfg config.OpenAIConfig) (ModelClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing openai base url")
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &openAIClient{
		log:           log.With("service", "OpenAIClient"),
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		httpClient:    &http.Client{Transport: tr, Timeout: timeout},
		streamTimeout: cfg.StreamTimeout.Duration,
		maxRetries:    maxRetries,
	}, nil
}

// NewOpenAIClientWithHTTP is intended for tests; it swaps the transport so no
// network access happens.
func NewOpenAIClientWithHTTP(log *logger.Logger, cfg config.OpenAIConfig, httpClient *http.Client) (ModelClient, error) {
	mc, err := NewOpenAIClient(log, cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		mc.(*openAIClient).httpClient = httpClient
	}
	return mc, nil
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "upstream http error"
	}
	if e.Body == "" {
		return fmt.Sprintf("upstream http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("upstream http error: status=%d body=%s", e.StatusCode, e.Body)
}

type chatCompletionRequest struct {
	Model    string         `json:"model"`
	Messages []ModelMessage `json:"messages"`
	Stream   bool           `json:"stream,omitempty"`
	Tools    []wireTool     `json:"tools,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireToolSpec `json:"function"`
}

type wireToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content,omitempty"`
		} `json:"message,omitempty"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content,omitempty"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id,omitempty"`
				Function struct {
					Name      string `json:"name,omitempty"`
					Arguments string `json:"arguments,omitempty"`
				} `json:"function,omitempty"`
			} `json:"tool_calls,omitempty"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error any `json:"error,omitempty"`
}

func toWireTools(tools []ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (c *openAIClient) StreamChat(ctx context.Context, model string, messages []ModelMessage, tools []ToolDefinition, onDelta func(ModelDelta) error) (*ModelResult, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages")
	}

	reqBody := chatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		Tools:    toWireTools(tools),
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return nil, err
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if c.streamTimeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, "POST", c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var (
		text      strings.Builder
		reasoning strings.Builder
		finish    string
	)
	// Tool-call fragments arrive keyed by index; id/name come first, the
	// argument string dribbles in afterwards.
	type toolAccum struct {
		id   string
		name string
		args strings.Builder
	}
	accums := map[int]*toolAccum{}
	maxIndex := -1

	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if chunk.Error != nil {
			b, _ := json.Marshal(chunk.Error)
			return fmt.Errorf("upstream stream error: %s", string(b))
		}
		for _, ch := range chunk.Choices {
			if ch.FinishReason != "" {
				finish = ch.FinishReason
			}
			d := ch.Delta
			if d.Content != "" {
				text.WriteString(d.Content)
				if onDelta != nil {
					if err := onDelta(ModelDelta{Text: d.Content}); err != nil {
						return err
					}
				}
			}
			if d.ReasoningContent != "" {
				reasoning.WriteString(d.ReasoningContent)
				if onDelta != nil {
					if err := onDelta(ModelDelta{Reasoning: d.ReasoningContent}); err != nil {
						return err
					}
				}
			}
			for _, tc := range d.ToolCalls {
				acc, ok := accums[tc.Index]
				if !ok {
					acc = &toolAccum{}
					accums[tc.Index] = acc
				}
				if tc.Index > maxIndex {
					maxIndex = tc.Index
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ModelResult{
		Text:         text.String(),
		Reasoning:    reasoning.String(),
		FinishReason: finish,
	}
	for i := 0; i <= maxIndex; i++ {
		acc, ok := accums[i]
		if !ok || acc.name == "" {
			continue
		}
		args := strings.TrimSpace(acc.args.String())
		if args == "" {
			args = "{}"
		}
		res.ToolCalls = append(res.ToolCalls, ModelToolCall{
			ID:        acc.id,
			Name:      acc.name,
			Arguments: json.RawMessage(args),
		})
	}
	return res, nil
}

func (c *openAIClient) GenerateText(ctx context.Context, model string, system, user string) (string, error) {
	messages := []ModelMessage{}
	if strings.TrimSpace(system) != "" {
		messages = append(messages, ModelMessage{Role: "system", Content: system})
	}
	messages = append(messages, ModelMessage{Role: "user", Content: user})

	reqBody := chatCompletionRequest{Model: model, Messages: messages}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			backoff += time.Duration(rand.Intn(250)) * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		var resp chatCompletionResponse
		err := c.doJSON(ctx, "POST", "/v1/chat/completions", reqBody, &resp)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				break
			}
			continue
		}
		for _, ch := range resp.Choices {
			if strings.TrimSpace(ch.Message.Content) != "" {
				return ch.Message.Content, nil
			}
		}
		lastErr = errors.New("empty upstream completion")
	}
	if lastErr == nil {
		lastErr = errors.New("generation failed")
	}
	return "", lastErr
}

func isRetryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func (c *openAIClient) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *openAIClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	c.setHeaders(req, "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// streamSSE parses a text/event-stream body, invoking onEvent per event.
func streamSSE(r io.Reader, onEvent func(event string, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		ev := eventName
		eventName = ""
		if onEvent == nil {
			return nil
		}
		return onEvent(ev, data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = flush()
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
