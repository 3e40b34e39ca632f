package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"evtc_uploader/internal/scanner"
)

type mockScanner struct {
	mu      sync.Mutex
	result  *scanner.Result
	err     error
	scans   int
	scanned chan struct{}
}

func (m *mockScanner) Scan(_ context.Context) (*scanner.Result, error) {
	m.mu.Lock()
	m.scans++
	res, err := m.result, m.err
	m.mu.Unlock()
	if m.scanned != nil {
		m.scanned <- struct{}{}
	}
	return res, err
}

func (m *mockScanner) scanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

type mockWorker struct {
	mu       sync.Mutex
	enqueued []int64
	paused   bool
	resumes  int
}

func (m *mockWorker) Enqueue(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, ids...)
}

func (m *mockWorker) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

func (m *mockWorker) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.resumes++
}

func (m *mockWorker) snapshot() ([]int64, bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.enqueued...), m.paused, m.resumes
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitScan(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scan")
	}
}

func TestTriggerEnqueuesPending(t *testing.T) {
	sc := &mockScanner{
		result:  &scanner.Result{Pending: []int64{3, 5}},
		scanned: make(chan struct{}, 1),
	}
	w := &mockWorker{}

	s := New(sc, w, discardLogger())
	s.Trigger(context.Background())
	waitScan(t, sc.scanned)

	deadline := time.After(2 * time.Second)
	for {
		got, _, _ := w.snapshot()
		if len(got) > 0 {
			if diff := cmp.Diff([]int64{3, 5}, got); diff != "" {
				t.Errorf("enqueued mismatch (-want +got):\n%s", diff)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("pending ids never enqueued")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTriggerSkipsEmptyPending(t *testing.T) {
	sc := &mockScanner{
		result:  &scanner.Result{},
		scanned: make(chan struct{}, 1),
	}
	w := &mockWorker{}

	s := New(sc, w, discardLogger())
	s.Trigger(context.Background())
	waitScan(t, sc.scanned)

	time.Sleep(20 * time.Millisecond)
	if got, _, _ := w.snapshot(); len(got) != 0 {
		t.Errorf("enqueued = %v, want none", got)
	}
}

func TestTriggerIgnoresScanInFlight(t *testing.T) {
	sc := &mockScanner{
		err:     scanner.ErrScanInFlight,
		scanned: make(chan struct{}, 1),
	}
	w := &mockWorker{}

	s := New(sc, w, discardLogger())
	s.Trigger(context.Background())
	waitScan(t, sc.scanned)

	if got, _, _ := w.snapshot(); len(got) != 0 {
		t.Errorf("enqueued = %v, want none", got)
	}
}

func TestCombatSuppressesTriggers(t *testing.T) {
	sc := &mockScanner{
		result:  &scanner.Result{Pending: []int64{7}},
		scanned: make(chan struct{}, 4),
	}
	w := &mockWorker{}

	s := New(sc, w, discardLogger())
	s.SetCombat(true)
	if !s.InCombat() {
		t.Fatal("combat flag not set")
	}
	if _, paused, _ := w.snapshot(); !paused {
		t.Fatal("worker not paused on entering combat")
	}

	s.Trigger(context.Background())
	time.Sleep(20 * time.Millisecond)
	if got := sc.scanCount(); got != 0 {
		t.Fatalf("scans during combat = %d, want 0", got)
	}

	s.SetCombat(false)
	if _, paused, resumes := w.snapshot(); paused || resumes != 1 {
		t.Fatalf("paused=%v resumes=%d after leaving combat", paused, resumes)
	}

	s.Trigger(context.Background())
	waitScan(t, sc.scanned)
}

func TestSetCombatIdempotent(t *testing.T) {
	w := &mockWorker{}
	s := New(&mockScanner{result: &scanner.Result{}}, w, discardLogger())

	s.SetCombat(false)
	if _, _, resumes := w.snapshot(); resumes != 0 {
		t.Errorf("resumes = %d, want 0 when flag unchanged", resumes)
	}

	s.SetCombat(true)
	s.SetCombat(true)
	s.SetCombat(false)
	s.SetCombat(false)
	if _, _, resumes := w.snapshot(); resumes != 1 {
		t.Errorf("resumes = %d, want 1", resumes)
	}
}

func TestRunScansImmediatelyAndOnTick(t *testing.T) {
	sc := &mockScanner{
		result:  &scanner.Result{},
		scanned: make(chan struct{}, 8),
	}
	w := &mockWorker{}

	s := New(sc, w, discardLogger())
	s.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitScan(t, sc.scanned)
	waitScan(t, sc.scanned)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
