// Package scanner discovers combat log files on disk and tracks them
// in storage.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"evtc_uploader/internal/model"
	"evtc_uploader/internal/status"
	"evtc_uploader/internal/storage"
)

// ErrScanInFlight is returned when a scan is requested while another
// one is still running.
var ErrScanInFlight = errors.New("scan already in flight")

const defaultRecentLimit = 75

const humanTimeLayout = "03:04PM (Mon Jan 02)"

// Recognized log file extensions. The .zip form is the .evtc.zip
// container; identity derivation strips both extensions.
var logExtensions = map[string]struct{}{
	".evtc":  {},
	".zevtc": {},
	".zip":   {},
}

// Result holds the outcome of one scan.
type Result struct {
	// Recent is the newest-first window of tracked records.
	Recent []model.LogRecord
	// Pending is the subset of Recent not yet uploaded, oldest first,
	// ready to be enqueued for upload.
	Pending []int64
}

// Scanner walks a directory tree for new log files, inserts unseen
// ones into storage, and reports the recent window. At most one scan
// runs at a time.
type Scanner struct {
	store  storage.Storage
	inbox  *status.Inbox
	log    *slog.Logger
	dir    string
	limit  int
	inScan atomic.Bool

	// missingReported suppresses repeated "directory does not exist"
	// messages between scheduler ticks. Only the scan in flight
	// touches it.
	missingReported bool
}

// New creates a Scanner over the given directory.
func New(store storage.Storage, inbox *status.Inbox, dir string, log *slog.Logger) *Scanner {
	return &Scanner{
		store: store,
		inbox: inbox,
		log:   log,
		dir:   dir,
		limit: defaultRecentLimit,
	}
}

// SetRecentLimit overrides the default recent-window size of 75.
func (s *Scanner) SetRecentLimit(n int) {
	s.limit = n
}

// InFlight reports whether a scan is currently running. It never
// blocks; the presentation layer polls it for completion.
func (s *Scanner) InFlight() bool {
	return s.inScan.Load()
}

// Scan walks the log directory, inserts records for files whose
// identity is not yet tracked, and returns the recent window together
// with the pending upload set. A scan already in flight short-circuits
// with ErrScanInFlight. A missing directory is reported once to the
// status inbox and yields an empty result.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if !s.inScan.CompareAndSwap(false, true) {
		return nil, ErrScanInFlight
	}
	defer s.inScan.Store(false)

	if _, err := os.Stat(s.dir); err != nil {
		if os.IsNotExist(err) {
			if !s.missingReported {
				s.missingReported = true
				s.inbox.Publish(fmt.Sprintf("Log directory %s does not exist; nothing to scan.", s.dir))
				s.log.Warn("log directory missing", "dir", s.dir)
			}
			return &Result{}, nil
		}
		return nil, fmt.Errorf("stat log directory: %w", err)
	}
	s.missingReported = false

	known, err := s.store.KnownFilenames(ctx)
	if err != nil {
		return nil, fmt.Errorf("known filenames: %w", err)
	}

	err = filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Warn("walk error", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if _, ok := logExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}
		identity := stripExtensions(name)
		if _, ok := known[identity]; ok {
			return nil
		}

		rec := model.LogRecord{
			Filename: identity,
			Path:     path,
		}
		ts, perr := ParseTimestamp(identity)
		if perr != nil {
			// Degraded record: keep the zero time rather than failing
			// the scan.
			s.log.Warn("parse log timestamp", "filename", identity, "error", perr)
		}
		rec.Time = ts
		rec.HumanTime = ts.Local().Format(humanTimeLayout)

		if err := s.store.InsertLog(ctx, &rec); err != nil {
			// Skipped this round; the file stays unseen and is retried
			// on the next scan.
			s.log.Error("insert log", "filename", identity, "error", err)
			return nil
		}
		known[identity] = struct{}{}
		s.log.Info("found new log", "filename", identity, "path", path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.dir, err)
	}

	recent, err := s.store.ListRecentLogs(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("list recent logs: %w", err)
	}

	res := &Result{Recent: recent}
	// Oldest pending first, preserving upload order across scans.
	for i := len(recent) - 1; i >= 0; i-- {
		if !recent[i].Uploaded {
			res.Pending = append(res.Pending, recent[i].ID)
		}
	}
	return res, nil
}

// stripExtensions removes up to two extensions from a file name, so
// both "x.zevtc" and "x.evtc.zip" yield the identity "x".
func stripExtensions(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ParseTimestamp extracts the creation time encoded in a log filename.
// The canonical form is 20060102-150405; the seconds are optional and
// the separator may be missing entirely, so the digits are split at
// fixed offsets before parsing.
func ParseTimestamp(name string) (time.Time, error) {
	if len(name) < 8 || !allDigits(name[:8]) {
		return time.Time{}, fmt.Errorf("no date prefix in %q", name)
	}
	date := name[:8]

	rest := name[8:]
	rest = strings.TrimPrefix(rest, "-")
	digits := leadingDigits(rest)
	if len(digits) > 6 {
		digits = digits[:6]
	}

	switch {
	case len(digits) >= 6:
		return time.ParseInLocation("20060102150405", date+digits[:6], time.Local)
	case len(digits) >= 4:
		return time.ParseInLocation("200601021504", date+digits[:4], time.Local)
	default:
		return time.Time{}, fmt.Errorf("no time component in %q", name)
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
