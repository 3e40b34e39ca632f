// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"evtc_uploader/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	InsertLog(ctx context.Context, rec *model.LogRecord) error
	UpdateLog(ctx context.Context, rec *model.LogRecord) error
	GetLog(ctx context.Context, id int64) (*model.LogRecord, error)
	ListRecentLogs(ctx context.Context, limit int) ([]model.LogRecord, error)
	KnownFilenames(ctx context.Context) (map[string]struct{}, error)

	CreateWebhook(ctx context.Context, rule *model.WebhookRule) error
	ListWebhooks(ctx context.Context) ([]model.WebhookRule, error)
	UpdateWebhook(ctx context.Context, rule *model.WebhookRule) error
	DeleteWebhook(ctx context.Context, id int64) error

	UserToken(ctx context.Context) (string, error)
	SetUserToken(ctx context.Context, token string) error

	Close() error
}
