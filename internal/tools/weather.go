package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/stream"
)

const defaultWeatherBaseURL = "https://api.open-meteo.com"

// weatherTool is a pure read against the open-meteo forecast API.
type weatherTool struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewWeatherTool(log *logger.Logger) Tool {
	return &weatherTool{
		log:        log.With("tool", "get_weather"),
		baseURL:    defaultWeatherBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewWeatherToolWithBaseURL is intended for tests.
func NewWeatherToolWithBaseURL(log *logger.Logger, baseURL string, httpClient *http.Client) Tool {
	t := NewWeatherTool(log).(*weatherTool)
	if baseURL != "" {
		t.baseURL = baseURL
	}
	if httpClient != nil {
		t.httpClient = httpClient
	}
	return t
}

func (t *weatherTool) Definition() Definition {
	return Definition{
		Name:        "get_weather",
		Description: "Get the current weather at a location",
		Parameters: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"latitude":  map[string]any{"type": "number"},
				"longitude": map[string]any{"type": "number"},
			},
			"required": []string{"latitude", "longitude"},
		},
		Requires: []string{"latitude", "longitude"},
	}
}

func (t *weatherTool) Invoke(ctx context.Context, _ Session, _ stream.Sink, _ string, input map[string]any) (any, error) {
	lat, ok := asFloat(input["latitude"])
	if !ok {
		return nil, fmt.Errorf("latitude must be a number")
	}
	lon, ok := asFloat(input["longitude"])
	if !ok {
		return nil, fmt.Errorf("longitude must be a number")
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("current", "temperature_2m")
	q.Set("hourly", "temperature_2m")
	q.Set("daily", "sunrise,sunset")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, "GET", t.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("weather lookup failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("weather response decode: %w", err)
	}
	return payload, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
