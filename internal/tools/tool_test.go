package tools

import (
	"encoding/json"
	"testing"

	"github.com/yungbote/chatstream-backend/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestDecodeInput(t *testing.T) {
	def := Definition{
		Name:     "sample",
		Requires: []string{"title", "kind"},
	}

	cases := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "all_required_present", raw: `{"title":"notes","kind":"text"}`, wantErr: false},
		{name: "extra_fields_allowed", raw: `{"title":"notes","kind":"text","other":1}`, wantErr: false},
		{name: "missing_field", raw: `{"title":"notes"}`, wantErr: true},
		{name: "null_field", raw: `{"title":"notes","kind":null}`, wantErr: true},
		{name: "blank_string_field", raw: `{"title":"  ","kind":"text"}`, wantErr: true},
		{name: "not_json", raw: `not json at all`, wantErr: true},
		{name: "empty_payload", raw: ``, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInput(json.RawMessage(tc.raw), def)
			if tc.wantErr && err == nil {
				t.Fatalf("DecodeInput(%q) succeeded, want error", tc.raw)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("DecodeInput(%q): %v", tc.raw, err)
			}
		})
	}

	input, err := DecodeInput(nil, Definition{Name: "no_args"})
	if err != nil {
		t.Fatalf("DecodeInput with no schema: %v", err)
	}
	if len(input) != 0 {
		t.Fatalf("expected empty input, got %v", input)
	}
}

func TestIdempotentIDIsStable(t *testing.T) {
	a := IdempotentID("call_123")
	b := IdempotentID("call_123")
	c := IdempotentID("call_456")
	if a != b {
		t.Fatal("same call id must derive the same uuid")
	}
	if a == c {
		t.Fatal("distinct call ids must derive distinct uuids")
	}
}

func TestRegistryOrderAndDedup(t *testing.T) {
	w := NewWeatherToolWithBaseURL(testLogger(t), "http://example.invalid", nil)
	r := NewRegistry(w, w)

	defs := r.Definitions()
	if len(defs) != 1 {
		t.Fatalf("duplicate registration leaked: %d definitions", len(defs))
	}
	if defs[0].Name != "get_weather" {
		t.Fatalf("definition name = %q", defs[0].Name)
	}
	if _, ok := r.Get("get_weather"); !ok {
		t.Fatal("registered tool not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("unknown tool reported as found")
	}
}
