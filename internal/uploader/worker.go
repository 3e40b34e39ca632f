// Package uploader implements the upload queue and the single worker
// goroutine that drains it.
package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"evtc_uploader/internal/model"
	"evtc_uploader/internal/report"
	"evtc_uploader/internal/status"
	"evtc_uploader/internal/storage"
)

// Dispatcher receives the IDs of successfully uploaded logs for
// webhook fan-out.
type Dispatcher interface {
	Dispatch(ctx context.Context, logID int64)
}

// Notifier announces successful uploads to an external channel.
type Notifier interface {
	Announce(ctx context.Context, rec *model.LogRecord)
}

// Worker owns the pending-upload queue and processes it one job at a
// time. Each dequeued log is uploaded, its record updated, and on
// success handed to the dispatcher and notifier. The worker survives
// any single job's failure.
type Worker struct {
	store    storage.Storage
	client   *report.Client
	hooks    Dispatcher
	notifier Notifier
	inbox    *status.Inbox
	log      *slog.Logger

	queue  *queue
	wake   chan struct{}
	paused atomic.Bool

	// userToken is set before Start and afterwards touched only by the
	// worker goroutine when adopting a server-issued token.
	userToken string

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Worker. hooks may be nil to disable fan-out.
func New(store storage.Storage, client *report.Client, hooks Dispatcher, inbox *status.Inbox, log *slog.Logger) *Worker {
	return &Worker{
		store:  store,
		client: client,
		hooks:  hooks,
		inbox:  inbox,
		log:    log,
		queue:  newQueue(),
		wake:   make(chan struct{}, 1),
	}
}

// SetNotifier installs an upload announcer. Must be called before Start.
func (w *Worker) SetNotifier(n Notifier) {
	w.notifier = n
}

// SetUserToken configures the dps.report user token sent with uploads.
// Must be called before Start.
func (w *Worker) SetUserToken(token string) {
	w.userToken = token
}

// Start launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
}

// Stop signals the worker to exit and waits for it to finish. A job
// already in flight is allowed to complete.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Enqueue adds log IDs to the pending queue, deduplicating against IDs
// already queued, and wakes the worker when anything new was added.
func (w *Worker) Enqueue(ids ...int64) {
	if len(ids) == 0 {
		return
	}
	if !w.queue.push(ids...) {
		return
	}
	if w.paused.Load() {
		return
	}
	w.signal()
}

// Pause stops the worker from picking up further queued jobs, for the
// duration of combat. Queued work is retained.
func (w *Worker) Pause() {
	w.paused.Store(true)
}

// Resume lifts the pause and re-signals when queued work remains, so a
// wake suppressed during combat is not lost.
func (w *Worker) Resume() {
	w.paused.Store(false)
	if w.queue.len() > 0 {
		w.signal()
	}
}

// QueueLen reports the number of jobs waiting to be processed.
func (w *Worker) QueueLen() int {
	return w.queue.len()
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil && !w.paused.Load() {
		id, ok := w.queue.pop()
		if !ok {
			return
		}
		w.process(ctx, id)
	}
}

func (w *Worker) process(ctx context.Context, id int64) {
	rec, err := w.store.GetLog(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.log.Warn("queued log no longer exists", "log_id", id)
			return
		}
		w.log.Error("load queued log", "log_id", id, "error", err)
		return
	}
	if rec.Uploaded {
		return
	}

	w.inbox.PublishLog(fmt.Sprintf("Uploading %s - %s.", rec.DisplayName(), rec.HumanTime), rec.ID)

	resp, err := w.client.Upload(ctx, rec.Path, w.userToken)
	if err != nil {
		w.handleUploadError(ctx, rec, err)
		return
	}

	rec.ReportID = resp.ID
	rec.Permalink = resp.Permalink
	rec.BossID = resp.Encounter.BossID
	rec.BossName = resp.Encounter.Boss
	rec.JSONAvailable = resp.Encounter.JSONAvailable
	rec.Success = resp.Encounter.Success
	if len(resp.Players) > 0 {
		players, merr := json.Marshal(resp.Players)
		if merr != nil {
			w.log.Error("encode roster", "log_id", rec.ID, "error", merr)
		} else {
			rec.PlayersJSON = string(players)
		}
	}
	rec.Uploaded = true
	rec.Error = false

	if resp.UserToken != "" && w.userToken == "" {
		w.adoptToken(ctx, resp.UserToken)
	}

	if err := w.store.UpdateLog(ctx, rec); err != nil {
		w.log.Error("persist uploaded log", "log_id", rec.ID, "error", err)
		w.inbox.PublishLog(fmt.Sprintf("Uploaded %s but failed to save the result.", rec.DisplayName()), rec.ID)
		return
	}

	w.inbox.PublishLog(fmt.Sprintf("Uploaded %s - %s.\n%s", rec.DisplayName(), rec.HumanTime, rec.Permalink), rec.ID)
	w.log.Info("uploaded log", "log_id", rec.ID, "report_id", rec.ReportID, "permalink", rec.Permalink)

	if w.hooks != nil {
		w.hooks.Dispatch(ctx, rec.ID)
	}
	if w.notifier != nil {
		w.notifier.Announce(ctx, rec)
	}
}

// handleUploadError applies the outcome matrix: 401/400 and transport
// errors leave the record untouched so a later scan can retry it; a
// fully unrecognized response is terminal and marks the record
// uploaded with the error flag so it never blocks the queue again.
func (w *Worker) handleUploadError(ctx context.Context, rec *model.LogRecord, err error) {
	var statusErr *report.StatusError
	switch {
	case errors.As(err, &statusErr):
		switch statusErr.Code {
		case 401:
			w.inbox.PublishLog(fmt.Sprintf("Upload of %s failed: authorization rejected (401). Check the configured user token.", rec.DisplayName()), rec.ID)
		case 400:
			w.inbox.PublishLog(fmt.Sprintf("Upload of %s failed: the report service rejected the file (400).", rec.DisplayName()), rec.ID)
		default:
			w.markTerminal(ctx, rec)
			w.inbox.PublishLog(fmt.Sprintf("Unrecognized response (status %d) uploading %s; giving up on it.", statusErr.Code, rec.DisplayName()), rec.ID)
		}
		w.log.Error("upload rejected", "log_id", rec.ID, "status", statusErr.Code)
	case errors.Is(err, report.ErrBadResponse):
		w.markTerminal(ctx, rec)
		w.inbox.PublishLog(fmt.Sprintf("Unrecognized response uploading %s; giving up on it.", rec.DisplayName()), rec.ID)
		w.log.Error("upload response unrecognized", "log_id", rec.ID, "error", err)
	default:
		w.inbox.PublishLog(fmt.Sprintf("Upload of %s failed: %v.", rec.DisplayName(), err), rec.ID)
		w.log.Error("upload failed", "log_id", rec.ID, "error", err)
	}
}

func (w *Worker) markTerminal(ctx context.Context, rec *model.LogRecord) {
	rec.Uploaded = true
	rec.Error = true
	if err := w.store.UpdateLog(ctx, rec); err != nil {
		w.log.Error("persist failed log", "log_id", rec.ID, "error", err)
	}
}

func (w *Worker) adoptToken(ctx context.Context, token string) {
	w.userToken = token
	if err := w.store.SetUserToken(ctx, token); err != nil {
		w.log.Error("persist user token", "error", err)
		return
	}
	w.inbox.Publish("The report service issued a user token; saved for future uploads.")
}
