package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"evtc_uploader/internal/config"
	"evtc_uploader/internal/notify"
	"evtc_uploader/internal/report"
	"evtc_uploader/internal/scanner"
	"evtc_uploader/internal/scheduler"
	"evtc_uploader/internal/status"
	"evtc_uploader/internal/storage"
	"evtc_uploader/internal/uploader"
	"evtc_uploader/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := seedWebhooks(ctx, store, cfg.WebhooksFile, log); err != nil {
		log.Error("seed webhooks", "error", err)
		os.Exit(1)
	}

	inbox := status.NewInbox()
	sc := scanner.New(store, inbox, cfg.LogDir, log)
	client := report.New(http.DefaultClient, cfg.UploadURL)
	engine := webhook.New(store, http.DefaultClient, log)

	worker := uploader.New(store, client, engine, inbox, log)
	token := cfg.UserToken
	if token == "" {
		token, err = store.UserToken(ctx)
		if err != nil {
			log.Error("load user token", "error", err)
			os.Exit(1)
		}
	}
	worker.SetUserToken(token)

	if cfg.Telegram.BotToken != "" {
		notifier, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.SuccessOnly, log)
		if err != nil {
			log.Error("create telegram notifier", "error", err)
			os.Exit(1)
		}
		worker.SetNotifier(notifier)
	}

	sched := scheduler.New(sc, worker, log)
	sched.SetTickInterval(cfg.ScanInterval)

	log.Info("starting uploader", "log_dir", cfg.LogDir, "interval", cfg.ScanInterval)

	worker.Start(ctx)
	go drainStatus(ctx, inbox, log)

	sched.Run(ctx)

	worker.Stop()
	engine.Wait()

	for _, m := range inbox.Drain() {
		log.Info(m.Text, "log_id", m.LogID)
	}
	log.Info("uploader stopped")
}

// seedWebhooks inserts rules from the YAML file that are not yet in
// the database, matched by name. Existing rules are left untouched.
func seedWebhooks(ctx context.Context, store storage.Storage, path string, log *slog.Logger) error {
	rules, err := config.LoadWebhookRules(path)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	existing, err := store.ListWebhooks(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		byName[r.Name] = struct{}{}
	}

	for i := range rules {
		if _, ok := byName[rules[i].Name]; ok {
			continue
		}
		if err := store.CreateWebhook(ctx, &rules[i]); err != nil {
			return err
		}
		log.Info("registered webhook", "name", rules[i].Name)
	}
	return nil
}

// drainStatus is the stand-in presentation layer: it periodically
// drains the status inbox to the log without ever blocking the
// scanner or the worker.
func drainStatus(ctx context.Context, inbox *status.Inbox, log *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	flush := func() {
		for _, m := range inbox.Drain() {
			if m.LogID != 0 {
				log.Info(m.Text, "log_id", m.LogID)
			} else {
				log.Info(m.Text)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
