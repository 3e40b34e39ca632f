package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"evtc_uploader/internal/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_DIR", "DATABASE_PATH", "UPLOAD_URL", "USER_TOKEN",
		"SCAN_INTERVAL_MINUTES", "WEBHOOKS_FILE", "LOG_LEVEL",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TELEGRAM_SUCCESS_ONLY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "defaults",
			env:  map[string]string{"LOG_DIR": "/logs"},
			want: &Config{
				LogDir:       "/logs",
				DatabasePath: "./data/uploader.db",
				ScanInterval: 2 * time.Minute,
				LogLevel:     "info",
			},
		},
		{
			name: "everything set",
			env: map[string]string{
				"LOG_DIR":               "/logs",
				"DATABASE_PATH":         "/var/lib/uploader.db",
				"UPLOAD_URL":            "https://upload.example/uploadContent",
				"USER_TOKEN":            "tok",
				"SCAN_INTERVAL_MINUTES": "5",
				"WEBHOOKS_FILE":         "/etc/webhooks.yaml",
				"LOG_LEVEL":             "debug",
				"TELEGRAM_BOT_TOKEN":    "bot-token",
				"TELEGRAM_CHAT_ID":      "-100200300",
				"TELEGRAM_SUCCESS_ONLY": "true",
			},
			want: &Config{
				LogDir:       "/logs",
				DatabasePath: "/var/lib/uploader.db",
				UploadURL:    "https://upload.example/uploadContent",
				UserToken:    "tok",
				ScanInterval: 5 * time.Minute,
				WebhooksFile: "/etc/webhooks.yaml",
				LogLevel:     "debug",
				Telegram: TelegramConfig{
					BotToken:    "bot-token",
					ChatID:      -100200300,
					SuccessOnly: true,
				},
			},
		},
		{
			name:    "missing log dir",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:    "invalid scan interval",
			env:     map[string]string{"LOG_DIR": "/logs", "SCAN_INTERVAL_MINUTES": "soon"},
			wantErr: true,
		},
		{
			name:    "zero scan interval",
			env:     map[string]string{"LOG_DIR": "/logs", "SCAN_INTERVAL_MINUTES": "0"},
			wantErr: true,
		},
		{
			name: "telegram token without chat id",
			env: map[string]string{
				"LOG_DIR":            "/logs",
				"TELEGRAM_BOT_TOKEN": "bot-token",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadWebhookRules(t *testing.T) {
	const rulesYAML = `
webhooks:
  - name: raid kills
    url: https://hooks.example/raids
    raids: true
    success_only: true
  - name: static
    url: https://hooks.example/static
    raids: true
    fractals: true
    filter: a.1111,b.2222
    filter_min: 2
`
	path := filepath.Join(t.TempDir(), "webhooks.yaml")
	if err := os.WriteFile(path, []byte(rulesYAML), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	got, err := LoadWebhookRules(path)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	want := []model.WebhookRule{
		{Name: "raid kills", URL: "https://hooks.example/raids", Raids: true, SuccessOnly: true},
		{Name: "static", URL: "https://hooks.example/static", Raids: true, Fractals: true, Filter: "a.1111,b.2222", FilterMin: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWebhookRulesEmptyPath(t *testing.T) {
	got, err := LoadWebhookRules("")
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if got != nil {
		t.Errorf("rules = %v, want nil", got)
	}
}

func TestLoadWebhookRulesInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing name", yaml: "webhooks:\n  - url: https://hooks.example/a\n"},
		{name: "missing url", yaml: "webhooks:\n  - name: unnamed\n"},
		{name: "not yaml", yaml: "{{nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "webhooks.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatalf("write rules file: %v", err)
			}
			if _, err := LoadWebhookRules(path); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadWebhookRulesMissingFile(t *testing.T) {
	if _, err := LoadWebhookRules(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error, got nil")
	}
}
