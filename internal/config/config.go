package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all environment backed configuration.
type Config struct {
	// Storage
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DBDSN    string `env:"DB_DSN" envDefault:"data/dreamate.db"`

	// Language model
	LLMProvider    string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMAPIKey      string        `env:"LLM_API_KEY"`
	LLMBaseURL     string        `env:"LLM_BASE_URL" envDefault:"https://dashscope.aliyuncs.com/compatible-mode/v1"`
	LLMWorkspaceID string        `env:"LLM_WORKSPACE_ID"`
	LLMTextModel   string        `env:"LLM_TEXT_MODEL" envDefault:"qwen-plus"`
	LLMVisionModel string        `env:"LLM_VISION_MODEL" envDefault:"qwen-vl-plus"`
	LLMTemperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMTopP        float32       `env:"LLM_TOP_P" envDefault:"0.8"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"512"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"20s"`

	// Vocabulary
	VocabResetOnReAdd     bool          `env:"VOCAB_RESET_ON_READD" envDefault:"false"`
	ReminderInterval      time.Duration `env:"REMINDER_INTERVAL" envDefault:"1h"`
	NotificationStartHour int           `env:"NOTIFICATION_START_HOUR" envDefault:"8"`
	NotificationEndHour   int           `env:"NOTIFICATION_END_HOUR" envDefault:"22"`

	// Telegram
	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramOwnerChatID int64  `env:"TELEGRAM_OWNER_CHAT_ID" envDefault:"0"`

	PersonaSeedFile string `env:"PERSONA_SEED_FILE" envDefault:"data/personas.yaml"`

	// Observability
	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads an optional .env file and parses the environment into Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.LLMTimeout <= 0 {
		return errors.New("LLM_TIMEOUT must be positive")
	}
	if c.NotificationStartHour < 0 || c.NotificationEndHour > 24 || c.NotificationStartHour >= c.NotificationEndHour {
		return fmt.Errorf("invalid notification window %d-%d", c.NotificationStartHour, c.NotificationEndHour)
	}
	if c.ReminderInterval <= 0 {
		return errors.New("REMINDER_INTERVAL must be positive")
	}
	return nil
}
