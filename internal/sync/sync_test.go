package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/baywatch/internal/store/memory"
)

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	err    error
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	ms := memory.New()
	addSession(t, ms, "ds-1", t0, true, "AA11")

	dest := &mockDestination{name: "mock"}
	sched := NewScheduler(ms, []Destination{dest}, 50*time.Millisecond, discardLogger())
	sched.Start()

	// Wait for at least the initial sync + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}
	// 1 header + 1 session
	if lines := nonEmptyLines(string(data)); len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(memory.New(), nil, time.Minute, discardLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	dest1 := &mockDestination{name: "one"}
	dest2 := &mockDestination{name: "two"}

	sched := NewScheduler(memory.New(), []Destination{dest1, dest2}, time.Second, discardLogger())
	sched.Start()

	// Wait for the initial sync.
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if dest1.writes.Load() < 1 {
		t.Fatal("dest1 expected at least 1 write")
	}
	if dest2.writes.Load() < 1 {
		t.Fatal("dest2 expected at least 1 write")
	}
}

func TestSyncOnce_FailingDestinationDoesNotBlockOthers(t *testing.T) {
	bad := &mockDestination{name: "bad", err: errors.New("bucket missing")}
	good := &mockDestination{name: "good"}

	sched := NewScheduler(memory.New(), []Destination{bad, good}, time.Minute, discardLogger())
	sched.now = func() time.Time { return t0 }

	if failed := sched.SyncOnce(context.Background()); failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if good.writes.Load() != 1 {
		t.Fatalf("good destination writes = %d, want 1", good.writes.Load())
	}
}

func TestSyncOnce_ExportFailure(t *testing.T) {
	dest := &mockDestination{name: "mock"}
	sched := NewScheduler(failingStore{memory.New()}, []Destination{dest}, time.Minute, discardLogger())

	if failed := sched.SyncOnce(context.Background()); failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if dest.writes.Load() != 0 {
		t.Fatal("destination should not be written when export fails")
	}
}
