// Package dispatch supervises meeting jobs: it watches the job document,
// runs one worker at a time for it, and sweeps up leftovers from previous
// runs at startup.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/metrics"
	"github.com/sesly/sesly-engine/internal/platform"
	"github.com/sesly/sesly-engine/internal/worker"
)

const (
	pollInterval = 2 * time.Second

	// debounceDelay batches the write+rename pair an atomic job write
	// produces into one wake-up.
	debounceDelay = 500 * time.Millisecond
)

// zombiePatterns match stray children from a crashed previous run.
var zombiePatterns = []string{"sesly-recorder", "sesly-worker"}

// Dispatcher polls the job document and runs a worker for it, one job at a
// time.
type Dispatcher struct {
	cfg   *config.Config
	store *ipc.Store
	log   zerolog.Logger

	// runJob is swapped in tests.
	runJob func(ctx context.Context, job ipc.Job) error

	mu     sync.Mutex
	cancel context.CancelFunc
	busy   bool
}

// New creates a dispatcher that runs jobs with an in-process worker.
func New(cfg *config.Config, store *ipc.Store, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "dispatch").Logger(),
	}
	d.runJob = func(ctx context.Context, job ipc.Job) error {
		return worker.New(cfg, store, log).Run(ctx, job)
	}
	return d
}

// Startup cleans the slate before the first poll: kills zombie recorders,
// workers and stale ffmpeg, drops any job left over from a previous run, and
// resets the published status.
func (d *Dispatcher) Startup() {
	if n := platform.KillProcessesMatching(zombiePatterns, d.log); n > 0 {
		d.log.Info().Int("killed", n).Msg("zombie processes cleaned up")
	}
	platform.KillStaleFFmpeg(d.cfg.SegmentDir, d.log)

	if _, ok := d.store.Job(); ok {
		d.log.Warn().Msg("stale job document found at startup, removing")
		d.store.DeleteJob()
	}
	d.store.DeleteCommand()
	if err := d.store.ResetWorkerStatus(ipc.WorkerStatus{StatusMessage: "Sistem hazır"}); err != nil {
		d.log.Warn().Err(err).Msg("status reset failed")
	}
}

// Run polls for jobs until ctx is cancelled. A filesystem watch on the data
// directory wakes the poll early so a submitted job starts within the
// debounce delay rather than a full poll interval.
func (d *Dispatcher) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	if watcher, err := fsnotify.NewWatcher(); err != nil {
		d.log.Warn().Err(err).Msg("fsnotify unavailable, polling only")
	} else if err := watcher.Add(d.store.DataDir()); err != nil {
		d.log.Warn().Err(err).Msg("cannot watch data dir, polling only")
		watcher.Close()
	} else {
		defer watcher.Close()
		go watchLoop(ctx, watcher, wake)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	d.log.Info().Msg("dispatcher running")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopping")
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
		d.dispatch(ctx)
	}
}

// watchLoop forwards debounced data-dir events into wake.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, wake chan<- struct{}) {
	timer := time.NewTimer(debounceDelay)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				timer.Reset(debounceDelay)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		case <-timer.C:
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

// dispatch runs the pending job, if any, blocking until the worker returns.
func (d *Dispatcher) dispatch(ctx context.Context) {
	job, ok := d.store.Job()
	if !ok || !job.Active {
		return
	}
	if !ipc.ValidPlatform(job.Platform) {
		d.log.Error().Str("platform", job.Platform).Msg("job for unknown platform, dropped")
		d.store.DeleteJob()
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.busy = true
	d.cancel = cancel
	d.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(job.Platform).Inc()
	d.log.Info().Str("platform", job.Platform).Str("url", job.MeetingURL).Msg("dispatching job")

	err := d.runJob(jobCtx, job)
	cancel()

	d.mu.Lock()
	d.busy = false
	d.cancel = nil
	d.mu.Unlock()

	if err != nil {
		d.log.Error().Err(err).Msg("worker returned an error")
	} else {
		d.log.Info().Msg("worker finished")
	}
	// Normally the worker deletes the job in teardown; cover the early-exit
	// paths so a failed job cannot redispatch forever.
	d.store.DeleteJob()
}

// Busy reports whether a worker is currently attending a meeting.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Abort cancels the in-flight worker, if any. Used by force-reset.
func (d *Dispatcher) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.log.Warn().Msg("aborting in-flight worker")
		d.cancel()
	}
}
