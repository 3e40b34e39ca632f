// Package config handles application configuration from environment
// variables and the optional YAML webhook rules file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"evtc_uploader/internal/model"
)

// Config holds the application configuration.
type Config struct {
	LogDir       string
	DatabasePath string
	UploadURL    string
	UserToken    string
	ScanInterval time.Duration
	WebhooksFile string
	LogLevel     string
	Telegram     TelegramConfig
}

// TelegramConfig configures the optional upload announcer. Disabled
// when BotToken is empty.
type TelegramConfig struct {
	BotToken    string
	ChatID      int64
	SuccessOnly bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	logDir := os.Getenv("LOG_DIR")
	if logDir == "" {
		return nil, fmt.Errorf("LOG_DIR is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/uploader.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	interval := 2 * time.Minute
	if raw := os.Getenv("SCAN_INTERVAL_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid SCAN_INTERVAL_MINUTES %q", raw)
		}
		interval = time.Duration(minutes) * time.Minute
	}

	cfg := &Config{
		LogDir:       logDir,
		DatabasePath: dbPath,
		UploadURL:    os.Getenv("UPLOAD_URL"),
		UserToken:    os.Getenv("USER_TOKEN"),
		ScanInterval: interval,
		WebhooksFile: os.Getenv("WEBHOOKS_FILE"),
		LogLevel:     logLevel,
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		rawChat := os.Getenv("TELEGRAM_CHAT_ID")
		chatID, err := strconv.ParseInt(rawChat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", rawChat, err)
		}
		successOnly := false
		if raw := os.Getenv("TELEGRAM_SUCCESS_ONLY"); raw != "" {
			successOnly, err = strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid TELEGRAM_SUCCESS_ONLY %q: %w", raw, err)
			}
		}
		cfg.Telegram = TelegramConfig{
			BotToken:    token,
			ChatID:      chatID,
			SuccessOnly: successOnly,
		}
	}

	return cfg, nil
}

type webhookYAML struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Raids       bool   `yaml:"raids"`
	Fractals    bool   `yaml:"fractals"`
	Strikes     bool   `yaml:"strikes"`
	Golems      bool   `yaml:"golems"`
	WvW         bool   `yaml:"wvw"`
	Filter      string `yaml:"filter"`
	FilterMin   int    `yaml:"filter_min"`
	SuccessOnly bool   `yaml:"success_only"`
}

// LoadWebhookRules reads webhook rules from a YAML file. An empty path
// yields no rules.
func LoadWebhookRules(path string) ([]model.WebhookRule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read webhooks file: %w", err)
	}

	var file struct {
		Webhooks []webhookYAML `yaml:"webhooks"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse webhooks file: %w", err)
	}

	rules := make([]model.WebhookRule, 0, len(file.Webhooks))
	for i, w := range file.Webhooks {
		if w.Name == "" {
			return nil, fmt.Errorf("webhook %d: name is required", i)
		}
		if w.URL == "" {
			return nil, fmt.Errorf("webhook %q: url is required", w.Name)
		}
		rules = append(rules, model.WebhookRule{
			Name:        w.Name,
			URL:         w.URL,
			Raids:       w.Raids,
			Fractals:    w.Fractals,
			Strikes:     w.Strikes,
			Golems:      w.Golems,
			WvW:         w.WvW,
			Filter:      w.Filter,
			FilterMin:   w.FilterMin,
			SuccessOnly: w.SuccessOnly,
		})
	}
	return rules, nil
}
