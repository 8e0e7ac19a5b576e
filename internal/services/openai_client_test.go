package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/yungbote/chatstream-backend/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) ModelClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	mc, err := NewOpenAIClientWithHTTP(testLogger(t), config.OpenAIConfig{
		BaseURL:    ts.URL,
		APIKey:     "test-key",
		MaxRetries: 2,
	}, ts.Client())
	if err != nil {
		t.Fatalf("NewOpenAIClientWithHTTP: %v", err)
	}
	return mc
}

func sseBody(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString("data: ")
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestStreamChatAssemblesTextAndDeltas(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"reasoning_content":"thinking"}}]}`,
			`{"choices":[{"finish_reason":"stop"}]}`,
		))
	})
	mc := newTestClient(t, handler)

	var deltas []ModelDelta
	res, err := mc.StreamChat(context.Background(), "test-model", []ModelMessage{{Role: "user", Content: "hi"}}, nil, func(d ModelDelta) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if res.Text != "Hello" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Reasoning != "thinking" {
		t.Fatalf("reasoning = %q", res.Reasoning)
	}
	if res.FinishReason != "stop" {
		t.Fatalf("finish reason = %q", res.FinishReason)
	}
	if len(deltas) != 3 {
		t.Fatalf("got %d deltas, want 3", len(deltas))
	}
}

func TestStreamChatAccumulatesToolCallFragments(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "get_weather" {
			t.Errorf("tools not forwarded: %+v", req.Tools)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_abc","function":{"name":"get_weather","arguments":""}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Oslo\"}"}}]}}]}`,
			`{"choices":[{"finish_reason":"tool_calls"}]}`,
		))
	})
	mc := newTestClient(t, handler)

	res, err := mc.StreamChat(context.Background(), "test-model",
		[]ModelMessage{{Role: "user", Content: "weather?"}},
		[]ToolDefinition{{Name: "get_weather", Parameters: map[string]any{"type": "object"}}},
		nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(res.ToolCalls))
	}
	tc := res.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Name != "get_weather" {
		t.Fatalf("tool call = %+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["city"] != "Oslo" {
		t.Fatalf("arguments = %s", tc.Arguments)
	}
}

func TestStreamChatUpstreamHTTPError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	})
	mc := newTestClient(t, handler)

	_, err := mc.StreamChat(context.Background(), "m", []ModelMessage{{Role: "user", Content: "x"}}, nil, nil)
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("got %v, want HTTPError 503", err)
	}
}

func TestGenerateTextRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"recovered"}}]}`)
	})
	mc := newTestClient(t, handler)

	got, err := mc.GenerateText(context.Background(), "m", "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("got %q", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("made %d calls, want 2", calls.Load())
	}
}

func TestGenerateTextDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	mc := newTestClient(t, handler)

	if _, err := mc.GenerateText(context.Background(), "m", "", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("made %d calls, want 1", calls.Load())
	}
}

func TestStreamSSEParsing(t *testing.T) {
	body := "event: delta\ndata: one\n\n: heartbeat\n\ndata: two\ndata: three\n\n"
	var events [][2]string
	err := streamSSE(strings.NewReader(body), func(event, data string) error {
		events = append(events, [2]string{event, data})
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0][0] != "delta" || events[0][1] != "one" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1][1] != "two\nthree" {
		t.Fatalf("multi-line data = %q", events[1][1])
	}
}
