// Package notify announces successful uploads to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"evtc_uploader/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts an announcement message for each successful upload.
// When successOnly is set, wipes are skipped and only encounter clears
// are announced.
type Telegram struct {
	api         telegramAPI
	chatID      int64
	successOnly bool
	log         *slog.Logger
}

// NewTelegram creates a Telegram notifier with the given bot token and
// destination chat.
func NewTelegram(token string, chatID int64, successOnly bool, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{
		api:         api,
		chatID:      chatID,
		successOnly: successOnly,
		log:         log,
	}, nil
}

// Announce sends the upload summary to the configured chat. Failures
// are logged and never propagate to the upload worker.
func (t *Telegram) Announce(_ context.Context, rec *model.LogRecord) {
	if t.successOnly && !rec.Success {
		return
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatAnnouncement(rec))
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("telegram announce", "log_id", rec.ID, "error", err)
	}
}

// FormatAnnouncement renders the notification text for an uploaded log.
func FormatAnnouncement(rec *model.LogRecord) string {
	var b strings.Builder
	if rec.Success {
		b.WriteString("Cleared ")
	} else {
		b.WriteString("Uploaded ")
	}
	fmt.Fprintf(&b, "%s - %s", rec.DisplayName(), rec.HumanTime)
	if rec.Permalink != "" {
		b.WriteString("\n")
		b.WriteString(rec.Permalink)
	}
	return b.String()
}
