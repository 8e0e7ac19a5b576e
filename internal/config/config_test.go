package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

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

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CS_CONFIG_PATH", path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CS_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	// Point at a file that does not exist: Load should fail loudly rather
	// than silently running on defaults.
	if _, err := Load(testLogger(t)); err == nil {
		t.Fatal("explicit missing config path should error")
	}

	writeConfig(t, "")
	cfg, err := Load(testLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.Quota.Guest != 20 || cfg.Quota.Registered != 100 {
		t.Fatalf("quota defaults = %+v", cfg.Quota)
	}
	if cfg.Generation.MaxSteps != 5 {
		t.Fatalf("max steps = %d", cfg.Generation.MaxSteps)
	}
	if cfg.Stream.Retention.Duration != 15*time.Minute {
		t.Fatalf("retention = %s", cfg.Stream.Retention.Duration)
	}
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	writeConfig(t, `
http_addr: ":9999"
quota:
  guest: 2
  registered: 4
generation:
  timeout: 90s
`)
	t.Setenv("QUOTA_REGISTERED", "8")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:1234")

	cfg, err := Load(testLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("yaml override lost: %q", cfg.HTTPAddr)
	}
	if cfg.Quota.Guest != 2 || cfg.Quota.Registered != 8 {
		t.Fatalf("env should win over yaml: %+v", cfg.Quota)
	}
	if cfg.OpenAI.BaseURL != "http://localhost:1234" {
		t.Fatalf("base url = %q", cfg.OpenAI.BaseURL)
	}
	if cfg.Generation.Timeout.Duration != 90*time.Second {
		t.Fatalf("timeout = %s", cfg.Generation.Timeout.Duration)
	}
}

func TestLoadRejectsInvertedQuotas(t *testing.T) {
	writeConfig(t, `
quota:
  guest: 50
  registered: 10
`)
	if _, err := Load(testLogger(t)); err == nil {
		t.Fatal("registered quota below guest quota must fail validation")
	}
}

func TestModelBySelector(t *testing.T) {
	writeConfig(t, "")
	cfg, err := Load(testLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m, ok := cfg.ModelBySelector("chat-model-reasoning")
	if !ok || !m.Reasoning {
		t.Fatalf("reasoning model lookup = %+v, %v", m, ok)
	}
	if _, ok := cfg.ModelBySelector("nope"); ok {
		t.Fatal("unknown selector resolved")
	}
}
