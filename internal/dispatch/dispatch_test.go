package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *ipc.Store) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{WorkDir: dir, SegmentDir: t.TempDir()}
	store := ipc.NewStore(dir, zerolog.Nop())
	if err := store.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return New(cfg, store, zerolog.Nop()), store
}

func writeJob(t *testing.T, store *ipc.Store, platformName string) {
	t.Helper()
	err := store.WriteJob(ipc.Job{
		Active:         true,
		Platform:       platformName,
		MeetingURL:     "https://example.test/meeting",
		BotDisplayName: "Sesly Bot",
		CreatedAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("WriteJob: %v", err)
	}
}

func TestDispatchRunsPendingJob(t *testing.T) {
	d, store := newTestDispatcher(t)

	var mu sync.Mutex
	var ran []string
	d.runJob = func(_ context.Context, job ipc.Job) error {
		mu.Lock()
		ran = append(ran, job.Platform)
		mu.Unlock()
		store.DeleteJob()
		return nil
	}

	writeJob(t, store, "meet")
	d.dispatch(context.Background())

	if len(ran) != 1 || ran[0] != "meet" {
		t.Fatalf("ran = %v, want [meet]", ran)
	}
	if _, ok := store.Job(); ok {
		t.Error("job document should be gone after dispatch")
	}
}

func TestDispatchIgnoresInactiveJob(t *testing.T) {
	d, store := newTestDispatcher(t)

	called := false
	d.runJob = func(context.Context, ipc.Job) error {
		called = true
		return nil
	}

	if err := store.WriteJob(ipc.Job{Active: false, Platform: "zoom"}); err != nil {
		t.Fatalf("WriteJob: %v", err)
	}
	d.dispatch(context.Background())

	if called {
		t.Error("inactive job must not be dispatched")
	}
}

func TestDispatchDropsUnknownPlatform(t *testing.T) {
	d, store := newTestDispatcher(t)

	called := false
	d.runJob = func(context.Context, ipc.Job) error {
		called = true
		return nil
	}

	writeJob(t, store, "webex")
	d.dispatch(context.Background())

	if called {
		t.Error("unknown platform must not be dispatched")
	}
	if _, ok := store.Job(); ok {
		t.Error("unknown-platform job should be deleted")
	}
}

func TestDispatchDeletesJobAfterWorkerError(t *testing.T) {
	d, store := newTestDispatcher(t)

	d.runJob = func(context.Context, ipc.Job) error {
		return context.DeadlineExceeded
	}

	writeJob(t, store, "teams")
	d.dispatch(context.Background())

	if _, ok := store.Job(); ok {
		t.Error("job must be deleted even when the worker fails, or it redispatches forever")
	}
}

func TestBusyDuringDispatch(t *testing.T) {
	d, store := newTestDispatcher(t)

	release := make(chan struct{})
	observed := make(chan bool, 1)
	d.runJob = func(context.Context, ipc.Job) error {
		observed <- d.Busy()
		<-release
		return nil
	}

	writeJob(t, store, "zoom")
	done := make(chan struct{})
	go func() {
		d.dispatch(context.Background())
		close(done)
	}()

	if busy := <-observed; !busy {
		t.Error("Busy() should report true while a worker runs")
	}
	close(release)
	<-done

	if d.Busy() {
		t.Error("Busy() should report false after the worker returns")
	}
}

func TestAbortCancelsWorkerContext(t *testing.T) {
	d, store := newTestDispatcher(t)

	started := make(chan struct{})
	d.runJob = func(ctx context.Context, _ ipc.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	writeJob(t, store, "meet")
	done := make(chan struct{})
	go func() {
		d.dispatch(context.Background())
		close(done)
	}()

	<-started
	d.Abort()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Abort did not cancel the running worker")
	}
}

func TestRunWakesOnJobWrite(t *testing.T) {
	d, store := newTestDispatcher(t)

	ran := make(chan string, 1)
	d.runJob = func(_ context.Context, job ipc.Job) error {
		ran <- job.Platform
		store.DeleteJob()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// Give the watcher a moment to attach before writing the job.
	time.Sleep(100 * time.Millisecond)
	writeJob(t, store, "meet")

	select {
	case p := <-ran:
		if p != "meet" {
			t.Errorf("dispatched %q, want meet", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job was never dispatched")
	}
}

func TestStartupClearsStaleState(t *testing.T) {
	d, store := newTestDispatcher(t)

	writeJob(t, store, "zoom")
	if err := store.WriteCommand(ipc.CommandStop); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	d.Startup()

	if _, ok := store.Job(); ok {
		t.Error("stale job should be removed at startup")
	}
	if _, ok := store.PeekCommand(); ok {
		t.Error("stale command should be removed at startup")
	}
	if ws := store.WorkerStatus(); ws.StatusMessage != "Sistem hazır" {
		t.Errorf("status message = %q, want %q", ws.StatusMessage, "Sistem hazır")
	}
}
