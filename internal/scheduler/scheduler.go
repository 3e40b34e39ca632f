// Package scheduler drives periodic log scans and gates the pipeline
// while the player is in combat.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"evtc_uploader/internal/scanner"
)

// Scanner produces the current set of recent and pending logs.
type Scanner interface {
	Scan(ctx context.Context) (*scanner.Result, error)
}

// Worker consumes pending upload IDs and supports combat pausing.
type Worker interface {
	Enqueue(ids ...int64)
	Pause()
	Resume()
}

// Scheduler triggers a scan at a fixed interval and feeds the pending
// set into the upload worker. While the combat flag is set, no scan is
// started and the worker is paused; queued work is retained.
type Scheduler struct {
	scanner  Scanner
	worker   Worker
	log      *slog.Logger
	tick     time.Duration
	inCombat atomic.Bool
}

// New creates a Scheduler with the default 2-minute interval.
func New(sc Scanner, w Worker, log *slog.Logger) *Scheduler {
	return &Scheduler{
		scanner: sc,
		worker:  w,
		log:     log,
		tick:    2 * time.Minute,
	}
}

// SetTickInterval overrides the default scan interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled. A
// scan is triggered immediately, then on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.Trigger(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a scan asynchronously unless the combat flag is set.
// The scanner itself rejects overlapping scans, so a trigger while one
// is in flight is a no-op.
func (s *Scheduler) Trigger(ctx context.Context) {
	if s.inCombat.Load() {
		return
	}
	go func() {
		res, err := s.scanner.Scan(ctx)
		if err != nil {
			if errors.Is(err, scanner.ErrScanInFlight) {
				return
			}
			s.log.Error("scan", "error", err)
			return
		}
		if len(res.Pending) > 0 {
			s.worker.Enqueue(res.Pending...)
		}
	}()
}

// SetCombat flips the combat gate. Entering combat pauses uploads and
// suppresses scan triggers; leaving combat resumes the worker, which
// re-signals itself when queued work remains.
func (s *Scheduler) SetCombat(in bool) {
	if s.inCombat.Swap(in) == in {
		return
	}
	if in {
		s.worker.Pause()
	} else {
		s.worker.Resume()
	}
}

// InCombat reports the current combat flag.
func (s *Scheduler) InCombat() bool {
	return s.inCombat.Load()
}
