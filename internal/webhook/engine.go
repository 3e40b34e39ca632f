// Package webhook evaluates configured webhook rules against completed
// uploads and dispatches the ones that match.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"evtc_uploader/internal/model"
	"evtc_uploader/internal/storage"
)

// Filter strings shorter than this disable roster filtering entirely:
// they cannot hold a full account name.
const minFilterLen = 6

const defaultTimeout = 10 * time.Second

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Engine loads the webhook rules at each dispatch and posts a summary
// to every rule whose gates pass. Deliveries run concurrently and
// independently; a failure is logged, never retried, and never
// propagated to the caller.
type Engine struct {
	store   storage.Storage
	client  HTTPClient
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// New creates an Engine using the given HTTP client.
func New(store storage.Storage, client HTTPClient, log *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		client:  client,
		log:     log,
		timeout: defaultTimeout,
	}
}

// Dispatch evaluates all configured rules against the given uploaded
// log and fires the matching ones. It returns as soon as the
// deliveries are started; it never blocks on their completion.
func (e *Engine) Dispatch(ctx context.Context, logID int64) {
	rec, err := e.store.GetLog(ctx, logID)
	if err != nil {
		e.log.Error("load log for webhooks", "log_id", logID, "error", err)
		return
	}

	roster, err := rec.Roster()
	if err != nil {
		// Fail closed: rules that require roster matches will not fire.
		e.log.Error("parse roster", "log_id", logID, "error", err)
		roster = nil
	}

	rules, err := e.store.ListWebhooks(ctx)
	if err != nil {
		e.log.Error("list webhooks", "log_id", logID, "error", err)
		return
	}

	cat := model.Categorize(rec.BossID)
	for _, rule := range rules {
		if !Matches(rule, rec, cat, roster) {
			continue
		}
		e.wg.Add(1)
		go e.send(ctx, rule, rec)
	}
}

// Wait blocks until all in-flight deliveries have finished. Used at
// shutdown and in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Matches reports whether a rule's category, success, and roster gates
// all pass for the given record.
func Matches(rule model.WebhookRule, rec *model.LogRecord, cat model.Category, roster map[string]model.Player) bool {
	if !categoryAllowed(rule, cat) {
		return false
	}
	if rule.SuccessOnly && !rec.Success {
		return false
	}
	return rosterAllowed(rule, roster)
}

func categoryAllowed(rule model.WebhookRule, cat model.Category) bool {
	switch cat {
	case model.CategoryFractal:
		return rule.Fractals
	case model.CategoryStrike:
		return rule.Strikes
	case model.CategoryGolem:
		return rule.Golems
	case model.CategoryWvW:
		return rule.WvW
	default:
		return rule.Raids
	}
}

// rosterAllowed passes when at least min(FilterMin, len(accounts)) of
// the rule's listed accounts appear in the roster, case-insensitively.
func rosterAllowed(rule model.WebhookRule, roster map[string]model.Player) bool {
	if len(rule.Filter) < minFilterLen {
		return true
	}

	var accounts []string
	for _, tok := range strings.Split(rule.Filter, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok != "" {
			accounts = append(accounts, tok)
		}
	}
	need := rule.FilterMin
	if need > len(accounts) {
		need = len(accounts)
	}
	if need <= 0 {
		return true
	}

	present := make(map[string]struct{}, len(roster))
	for account := range roster {
		present[strings.ToLower(account)] = struct{}{}
	}

	matched := 0
	for _, account := range accounts {
		if _, ok := present[account]; ok {
			matched++
		}
	}
	return matched >= need
}

func (e *Engine) send(ctx context.Context, rule model.WebhookRule, rec *model.LogRecord) {
	defer e.wg.Done()

	content := fmt.Sprintf("%s - *%s*\n%s", rec.DisplayName(), rec.HumanTime, rec.Permalink)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("content", content); err != nil {
		e.log.Error("webhook encode", "webhook", rule.Name, "log_id", rec.ID, "error", err)
		return
	}
	if err := mw.Close(); err != nil {
		e.log.Error("webhook encode", "webhook", rule.Name, "log_id", rec.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rule.URL, &buf)
	if err != nil {
		e.log.Error("webhook request", "webhook", rule.Name, "log_id", rec.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Error("webhook dispatch failed", "webhook", rule.Name, "log_id", rec.ID, "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.log.Error("webhook dispatch failed", "webhook", rule.Name, "log_id", rec.ID, "status", resp.StatusCode)
		return
	}
	e.log.Info("webhook dispatched", "webhook", rule.Name, "log_id", rec.ID)
}
