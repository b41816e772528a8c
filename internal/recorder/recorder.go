// Package recorder captures meeting audio with ffmpeg and streams it to the
// engine as five-minute WebM/Opus segments.
//
// ffmpeg writes chunk_000.webm, chunk_001.webm, ... into the segment
// directory. A closed chunk (any file that is no longer the newest) is
// validated, posted to the engine's /transcribe-webm endpoint, and deleted
// once accepted. On shutdown the recorder drains ffmpeg gracefully so the
// final partial segment is uploaded too.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/platform"
)

const (
	startupGrace      = 3 * time.Second
	scanInterval      = 5 * time.Second
	heartbeatInterval = 60 * time.Second
	drainTimeout      = 15 * time.Minute
)

type segmentSender interface {
	Upload(ctx context.Context, path string, start, duration float64) bool
}

type chunkChecker interface {
	Check(ctx context.Context, path string) Verdict
}

// Recorder owns one recording session: the ffmpeg process, the segment
// directory, and the upload bookkeeping.
type Recorder struct {
	cfg     *config.Config
	store   *ipc.Store
	log     zerolog.Logger
	sender  segmentSender
	checker chunkChecker

	ffmpegBin  string
	segmentDir string
	started    time.Time

	// firstSeen stamps each chunk when it appears on disk, which is when
	// the muxer opened it. That stamp is the segment's start time; the
	// fallback is close time minus probed duration.
	firstSeen map[string]time.Time
	uploaded  map[string]bool
	rejected  map[string]string
}

func New(cfg *config.Config, store *ipc.Store, log zerolog.Logger) *Recorder {
	bin := platform.ResolveFFmpeg(cfg.FFmpegPath)
	return &Recorder{
		cfg:        cfg,
		store:      store,
		log:        log,
		sender:     NewUploader(cfg.ServerURL(), store, log),
		checker:    NewValidator(platform.FFprobeFor(bin), log),
		ffmpegBin:  bin,
		segmentDir: cfg.SegmentDir,
		firstSeen:  map[string]time.Time{},
		uploaded:   map[string]bool{},
		rejected:   map[string]string{},
	}
}

// Run records until the stop signal appears, ffmpeg exits on its own, or ctx
// is cancelled. The drain runs in every case so recorded audio is never
// abandoned on disk.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.prepareSegmentDir(); err != nil {
		return err
	}

	stderrPath := filepath.Join(r.cfg.AbsLogDir(), "ffmpeg_debug.log")
	proc, err := startFFmpeg(r.ffmpegBin, ffmpegArgs(r.segmentDir), stderrPath, r.log)
	if err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	r.started = time.Now()
	// The muxer opens the first segment as soon as the process starts.
	r.firstSeen["chunk_000.webm"] = r.started
	r.log.Info().Str("dir", r.segmentDir).Msg("recording started")

	// An exit this early is a configuration problem (bad device, bad
	// flags), not something a retry would fix.
	select {
	case <-proc.Done():
		return fmt.Errorf("ffmpeg exited during startup: %w", proc.Err())
	case <-time.After(startupGrace):
	case <-ctx.Done():
	}

	r.loop(ctx, proc)

	// Uploads continue after cancellation so the final partial segment
	// still reaches the engine; the timeout bounds a wedged drain.
	dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	proc.Stop(r.log)
	r.drain(dctx)
	return nil
}

// prepareSegmentDir creates the chunk directory and clears leftovers from a
// previous run, killing any ffmpeg still writing into it first.
func (r *Recorder) prepareSegmentDir() error {
	if err := os.MkdirAll(r.segmentDir, 0o755); err != nil {
		return fmt.Errorf("create segment dir: %w", err)
	}
	stale, _ := filepath.Glob(filepath.Join(r.segmentDir, "*.webm"))
	if len(stale) == 0 {
		return nil
	}
	if n := platform.KillStaleFFmpeg(r.segmentDir, r.log); n > 0 {
		time.Sleep(time.Second)
	}
	for _, path := range stale {
		if err := os.Remove(path); err == nil {
			r.log.Info().Str("chunk", filepath.Base(path)).Msg("removed stale segment")
		}
	}
	return nil
}

func (r *Recorder) loop(ctx context.Context, proc *ffmpegProc) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastScan := time.Now()
	lastBeat := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("context cancelled, stopping recording")
			return
		case <-proc.Done():
			r.log.Warn().Err(proc.Err()).Msg("ffmpeg exited unexpectedly")
			return
		case <-ticker.C:
		}

		if r.store.StopSignalExists() {
			r.store.ClearStopSignal()
			r.log.Info().Msg("stop signal received")
			return
		}
		if time.Since(lastScan) >= scanInterval {
			lastScan = time.Now()
			r.scan(ctx)
		}
		if time.Since(lastBeat) >= heartbeatInterval {
			lastBeat = time.Now()
			r.heartbeat()
		}
	}
}

// scan uploads every closed chunk. ffmpeg is still writing the newest file,
// so that one is left alone until the drain.
func (r *Recorder) scan(ctx context.Context) {
	chunks := r.listChunks()
	now := time.Now()
	for _, c := range chunks {
		if _, ok := r.firstSeen[c.name]; !ok {
			r.firstSeen[c.name] = now
		}
	}
	if len(chunks) < 2 {
		return
	}
	for _, c := range chunks[:len(chunks)-1] {
		if r.uploaded[c.name] || r.rejected[c.name] != "" {
			continue
		}
		if r.uploadChunk(ctx, c) {
			r.removeChunk(c)
		}
	}
}

// drain uploads whatever is left, including the last partial segment, then
// reports the totals for the worker to read. Files predating this run are
// deleted without uploading.
func (r *Recorder) drain(ctx context.Context) {
	chunks := r.listChunks()
	if len(chunks) == 0 {
		r.log.Error().Msg("no segments recorded")
		return
	}

	sent, skipped := 0, 0
	for _, c := range chunks {
		if c.mtime.Before(r.started) {
			r.log.Warn().Str("chunk", c.name).Time("mtime", c.mtime).Msg("skipping segment from a previous run")
			continue
		}
		if r.uploaded[c.name] {
			continue
		}
		if r.uploadChunk(ctx, c) {
			sent++
		} else {
			skipped++
		}
	}
	for _, c := range chunks {
		r.removeChunk(c)
	}

	total := len(r.uploaded)
	r.log.Info().Int("sent_now", sent).Int("skipped", skipped).Int("total_uploaded", total).Msg("recording drained")
	if err := r.store.WriteRecorderStatus(ipc.RecorderStatus{
		Success:         true,
		SegmentsSent:    total,
		SegmentsSkipped: skipped,
	}); err != nil {
		r.log.Error().Err(err).Msg("failed to write recorder status")
	}
}

func (r *Recorder) uploadChunk(ctx context.Context, c chunkFile) bool {
	verdict := r.checker.Check(ctx, c.path)
	if !verdict.OK {
		// Closed chunks never change, so one verdict is final.
		r.rejected[c.name] = verdict.Reason
		r.log.Info().Str("chunk", c.name).Str("reason", verdict.Reason).Msg("segment skipped")
		return false
	}
	start := r.segmentStart(c, verdict.Duration)
	if !r.sender.Upload(ctx, c.path, start, verdict.Duration) {
		return false
	}
	r.uploaded[c.name] = true
	return true
}

func (r *Recorder) segmentStart(c chunkFile, duration float64) float64 {
	if t, ok := r.firstSeen[c.name]; ok {
		return float64(t.UnixNano()) / float64(time.Second)
	}
	if duration > 0 {
		return float64(c.mtime.UnixNano())/float64(time.Second) - duration
	}
	return 0
}

func (r *Recorder) removeChunk(c chunkFile) {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		r.log.Warn().Err(err).Str("chunk", c.name).Msg("failed to remove segment")
	}
}

func (r *Recorder) heartbeat() {
	chunks := r.listChunks()
	var size int64
	for _, c := range chunks {
		size += c.size
	}
	r.log.Info().
		Dur("elapsed", time.Since(r.started).Round(time.Second)).
		Int("chunks_on_disk", len(chunks)).
		Int("uploaded", len(r.uploaded)).
		Float64("disk_mb", float64(size)/(1024*1024)).
		Msg("recording")
}

type chunkFile struct {
	path  string
	name  string
	size  int64
	mtime time.Time
}

// listChunks returns the on-disk chunks in write order. The segment muxer
// numbers files, so lexicographic order is chronological.
func (r *Recorder) listChunks() []chunkFile {
	paths, err := filepath.Glob(filepath.Join(r.segmentDir, "chunk_*.webm"))
	if err != nil {
		return nil
	}
	sort.Strings(paths)

	out := make([]chunkFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		out = append(out, chunkFile{path: p, name: filepath.Base(p), size: info.Size(), mtime: info.ModTime()})
	}
	return out
}
