package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/utils"
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must look like \"30s\" or \"2m\": %w", err)
	}
	d.Duration = dd
	return nil
}

type ModelConfig struct {
	// Selector is what clients send as selectedChatModel.
	Selector string `yaml:"selector"`
	// Upstream model name passed to the backend.
	Model string `yaml:"model"`
	// Reasoning models surface reasoning deltas and run with tools disabled.
	Reasoning bool `yaml:"reasoning"`
}

type OpenAIConfig struct {
	BaseURL       string   `yaml:"base_url"`
	APIKey        string   `yaml:"api_key"`
	Timeout       Duration `yaml:"timeout"`
	StreamTimeout Duration `yaml:"stream_timeout"`
	MaxRetries    int      `yaml:"max_retries"`
}

type QuotaConfig struct {
	Guest      int `yaml:"guest"`
	Registered int `yaml:"registered"`
}

type StreamConfig struct {
	RedisAddr string   `yaml:"redis_addr"`
	KeyPrefix string   `yaml:"key_prefix"`
	Retention Duration `yaml:"retention"`
}

type GenerationConfig struct {
	MaxSteps int      `yaml:"max_steps"`
	Timeout  Duration `yaml:"timeout"`
}

type Config struct {
	Env        string           `yaml:"env"`
	HTTPAddr   string           `yaml:"http_addr"`
	JWTSecret  string           `yaml:"jwt_secret"`
	AccessTTL  Duration         `yaml:"access_ttl"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Models     []ModelConfig    `yaml:"models"`
	Quota      QuotaConfig      `yaml:"quota"`
	Stream     StreamConfig     `yaml:"stream"`
	Generation GenerationConfig `yaml:"generation"`
}

func defaultConfig() *Config {
	return &Config{
		Env:       "development",
		HTTPAddr:  ":8080",
		JWTSecret: "defaultsecret",
		AccessTTL: Duration{Duration: time.Hour},
		OpenAI: OpenAIConfig{
			BaseURL:       "https://api.openai.com",
			Timeout:       Duration{Duration: 180 * time.Second},
			StreamTimeout: Duration{Duration: 5 * time.Minute},
			MaxRetries:    4,
		},
		Models: []ModelConfig{
			{Selector: "chat-model", Model: "gpt-5.2"},
			{Selector: "chat-model-reasoning", Model: "o4-mini", Reasoning: true},
		},
		Quota: QuotaConfig{Guest: 20, Registered: 100},
		Stream: StreamConfig{
			KeyPrefix: "chatstream",
			Retention: Duration{Duration: 15 * time.Minute},
		},
		Generation: GenerationConfig{
			MaxSteps: 5,
			Timeout:  Duration{Duration: 2 * time.Minute},
		},
	}
}

// Load reads CS_CONFIG_PATH (or ./config/config.yaml) over the defaults, then
// lets a handful of environment variables win for deploy-time overrides.
func Load(log *logger.Logger) (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("CS_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	cfg.Env = utils.GetEnv("ENV", cfg.Env, log)
	cfg.HTTPAddr = utils.GetEnv("HTTP_ADDR", cfg.HTTPAddr, log)
	cfg.JWTSecret = utils.GetEnv("JWT_SECRET_KEY", cfg.JWTSecret, log)
	cfg.OpenAI.BaseURL = utils.GetEnv("OPENAI_BASE_URL", cfg.OpenAI.BaseURL, log)
	cfg.OpenAI.APIKey = utils.GetEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey, log)
	cfg.Stream.RedisAddr = utils.GetEnv("REDIS_ADDR", cfg.Stream.RedisAddr, log)
	cfg.Quota.Guest = utils.GetEnvAsInt("QUOTA_GUEST", cfg.Quota.Guest, log)
	cfg.Quota.Registered = utils.GetEnvAsInt("QUOTA_REGISTERED", cfg.Quota.Registered, log)

	if cfg.Generation.MaxSteps <= 0 {
		cfg.Generation.MaxSteps = 5
	}
	if cfg.Quota.Registered <= cfg.Quota.Guest {
		return nil, fmt.Errorf("quota.registered (%d) must exceed quota.guest (%d)", cfg.Quota.Registered, cfg.Quota.Guest)
	}
	return cfg, nil
}

// ModelBySelector resolves a client-facing model selector.
func (c *Config) ModelBySelector(selector string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Selector == selector {
			return m, true
		}
	}
	return ModelConfig{}, false
}
