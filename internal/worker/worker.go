// Package worker coordinates one meeting job end to end: it drives the
// browser client into the meeting, spawns the segment recorder, feeds the
// speaker timeline while the meeting runs, and on any end condition tears
// everything down in order (browser, recorder drain, report build, cleanup).
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/meeting"
	"github.com/sesly/sesly-engine/internal/metrics"
)

const (
	pollInterval       = 500 * time.Millisecond
	heartbeatInterval  = 5 * time.Second
	participantRefresh = 60 * time.Second

	// recorderStartupGrace mirrors the recorder's own startup check: if the
	// subprocess dies this fast, ffmpeg never came up.
	recorderStartupGrace = 5 * time.Second

	// recorderStopWait covers the recorder's graceful drain, which includes
	// the final segment upload.
	recorderStopWait = 60 * time.Second

	closeTimeout = 20 * time.Second
)

// welcomeMessage is posted to the meeting chat right after joining.
const welcomeMessage = "Merhaba! Ben Sesly Bot. Bu toplantıyı kaydediyorum ve transkript oluşturuyorum."

// Worker runs a single meeting job. One Worker instance serves one job.
type Worker struct {
	cfg   *config.Config
	store *ipc.Store
	log   zerolog.Logger

	// Seams for tests; production wiring is in New.
	newClient     func(platformName string, opts meeting.Options) (meeting.Client, error)
	startRecorder func(platformName string) (subprocess, error)
	runReport     func(ctx context.Context) error

	poll         time.Duration
	refreshEvery time.Duration
	recorderWait time.Duration
}

// New creates a worker bound to the shared IPC store.
func New(cfg *config.Config, store *ipc.Store, log zerolog.Logger) *Worker {
	w := &Worker{
		cfg:          cfg,
		store:        store,
		log:          log.With().Str("component", "worker").Logger(),
		newClient:    meeting.New,
		poll:         pollInterval,
		refreshEvery: participantRefresh,
		recorderWait: recorderStopWait,
	}
	w.startRecorder = w.spawnRecorder
	w.runReport = w.spawnReport
	return w
}

// Run executes the full job lifecycle and blocks until teardown finishes.
// The returned error describes why the meeting could not be attended; a
// meeting that ran and ended normally returns nil.
func (w *Worker) Run(ctx context.Context, job ipc.Job) error {
	w.log.Info().Str("platform", job.Platform).Str("url", job.MeetingURL).Msg("meeting job starting")
	metrics.WorkerRunning.Set(1)
	defer metrics.WorkerRunning.Set(0)

	w.store.ResetMeetingFiles()
	if err := w.store.ResetWorkerStatus(ipc.WorkerStatus{
		Platform:      job.Platform,
		Running:       true,
		StatusMessage: "Toplantıya katılıyor...",
	}); err != nil {
		w.log.Warn().Err(err).Msg("status write failed")
	}

	client, err := w.newClient(job.Platform, meeting.Options{
		URL:        job.MeetingURL,
		Passcode:   job.Passcode,
		BotName:    job.BotDisplayName,
		Headless:   w.cfg.Headless,
		ChromePath: w.cfg.ChromePath,
		StopRequested: func() bool {
			cmd, ok := w.store.PeekCommand()
			return ok && !cmd.Processed && (cmd.Command == ipc.CommandStop || cmd.Command == ipc.CommandForceReset)
		},
		Log: w.log,
	})
	if err != nil {
		w.failJoin(err.Error())
		return err
	}

	if err := client.Join(ctx); err != nil {
		w.log.Error().Err(err).Msg("could not join the meeting")
		msg := "Toplantıya katılınamadı. Link geçersiz veya toplantı bekleme odası zaman aşımına uğradı."
		if errors.Is(err, meeting.ErrStopRequested) {
			msg = "Katılım kullanıcı tarafından iptal edildi."
		}
		w.failJoin(msg)
		w.closeClient(client)
		return fmt.Errorf("join %s meeting: %w", job.Platform, err)
	}
	w.log.Info().Msg("joined the meeting")
	w.updateStatus(func(ws *ipc.WorkerStatus) {
		ws.StatusMessage = "Toplantıda - Kayıt başlıyor..."
	})

	if err := client.PostJoinSetup(ctx); err != nil {
		w.log.Warn().Err(err).Msg("post-join setup incomplete")
	}
	w.snapshotParticipants(ctx, client, job.Platform, nil)

	rec := w.launchRecorder(job.Platform)

	if err := client.SendChatMessage(ctx, welcomeMessage); err != nil {
		w.log.Warn().Err(err).Msg("welcome chat message failed")
	}

	endReason := w.observe(ctx, client, job)
	w.teardown(client, rec, endReason)
	return nil
}

// failJoin publishes a join failure so the UI stops showing a spinner.
func (w *Worker) failJoin(msg string) {
	w.updateStatus(func(ws *ipc.WorkerStatus) {
		ws.Running = false
		ws.StatusMessage = "Katılım başarısız!"
		ws.Error = msg
	})
}

// launchRecorder starts the recorder subprocess and verifies it survives the
// startup grace. A recorder that cannot start degrades the job to
// observation-only instead of failing it.
func (w *Worker) launchRecorder(platformName string) subprocess {
	rec, err := w.startRecorder(platformName)
	if err != nil {
		w.log.Error().Err(err).Msg("recorder start failed")
		w.updateStatus(func(ws *ipc.WorkerStatus) {
			ws.StatusMessage = "⚠️ Kayıt başlatılamadı"
		})
		return nil
	}
	if rec.Wait(recorderStartupGrace) {
		w.log.Error().Msg("recorder exited during startup")
		w.updateStatus(func(ws *ipc.WorkerStatus) {
			ws.StatusMessage = "⚠️ Kayıt başlatılamadı"
		})
		return nil
	}
	metrics.RecordingActive.Set(1)
	w.updateStatus(func(ws *ipc.WorkerStatus) {
		ws.Recording = true
		ws.StatusMessage = "🔴 Kayıt Alınıyor"
	})
	return rec
}

// observe is the meeting monitor loop. It returns the end reason:
// meeting.EndReasonNormal, a diagnostic string, or "" for an operator stop.
func (w *Worker) observe(ctx context.Context, client meeting.Client, job ipc.Job) string {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var lastSpeakers []string
	lastRefresh := time.Now()
	lastBeat := time.Now()
	paused := false

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("job context cancelled")
			return ""
		case <-ticker.C:
		}

		if cmd, ok := w.store.ConsumeCommand(); ok {
			switch cmd {
			case ipc.CommandStop, ipc.CommandForceReset:
				w.log.Info().Str("command", cmd).Msg("stop command received")
				return ""
			case ipc.CommandPause:
				paused = true
				w.updateStatus(func(ws *ipc.WorkerStatus) {
					ws.Paused = true
					ws.StatusMessage = "Kayıt duraklatıldı"
				})
			case ipc.CommandResume:
				paused = false
				w.updateStatus(func(ws *ipc.WorkerStatus) {
					ws.Paused = false
					ws.StatusMessage = "🔴 Kayıt Alınıyor"
				})
			default:
				w.log.Warn().Str("command", cmd).Msg("unknown command ignored")
			}
		}

		if ended, reason := client.MeetingEnded(ctx); ended {
			w.log.Info().Str("reason", reason).Msg("meeting end detected")
			if reason != meeting.EndReasonNormal && reason != "" {
				w.updateStatus(func(ws *ipc.WorkerStatus) {
					ws.Error = reason
				})
			}
			return reason
		}

		if !paused {
			speakers := client.ActiveSpeakers(ctx)
			if len(speakers) > 0 && !equalNames(speakers, lastSpeakers) {
				lastSpeakers = append([]string(nil), speakers...)
				w.recordSpeakers(ctx, client, job.Platform, speakers)
			}
		}

		if time.Since(lastRefresh) >= w.refreshEvery {
			lastRefresh = time.Now()
			w.snapshotParticipants(ctx, client, job.Platform, lastSpeakers)
		}
		if time.Since(lastBeat) >= heartbeatInterval {
			lastBeat = time.Now()
			w.updateStatus(func(ws *ipc.WorkerStatus) {
				ws.Running = true
			})
		}
	}
}

// recordSpeakers appends a speaker-set change to the timeline and activity
// log and refreshes the snapshot the transcription prompts read.
func (w *Worker) recordSpeakers(ctx context.Context, client meeting.Client, platformName string, speakers []string) {
	w.log.Info().Strs("speakers", speakers).Msg("active speakers changed")
	if err := w.store.AppendTimeline(speakers); err != nil {
		w.log.Warn().Err(err).Msg("timeline append failed")
	}
	if err := w.store.AppendActivity(platformName, speakers); err != nil {
		w.log.Warn().Err(err).Msg("activity log append failed")
	}

	participants := client.Participants(ctx, false)
	if len(participants) == 0 {
		participants = speakers
	}
	if err := w.store.WriteParticipants(ipc.ParticipantSnapshot{
		Platform:       platformName,
		Participants:   participants,
		ActiveSpeakers: speakers,
	}); err != nil {
		w.log.Warn().Err(err).Msg("participant snapshot write failed")
	}
}

// snapshotParticipants re-scrapes the roster and rewrites the snapshot.
func (w *Worker) snapshotParticipants(ctx context.Context, client meeting.Client, platformName string, activeSpeakers []string) {
	participants := client.Participants(ctx, true)
	if len(participants) == 0 {
		return
	}
	w.log.Info().Int("count", len(participants)).Msg("participant roster refreshed")
	if err := w.store.WriteParticipants(ipc.ParticipantSnapshot{
		Platform:       platformName,
		Participants:   participants,
		ActiveSpeakers: activeSpeakers,
	}); err != nil {
		w.log.Warn().Err(err).Msg("participant snapshot write failed")
	}
}

// teardown shuts the session down in order: browser first for immediate user
// feedback, then the recorder with its upload drain, then the report build.
func (w *Worker) teardown(client meeting.Client, rec subprocess, endReason string) {
	w.updateStatus(func(ws *ipc.WorkerStatus) {
		ws.Recording = false
		ws.StatusMessage = "Kapatılıyor..."
	})
	metrics.RecordingActive.Set(0)

	w.closeClient(client)
	w.stopRecorder(rec)

	// An invalid-link end produced nothing worth reporting; everything else
	// gets a report, even an empty meeting (placeholder report).
	if endReason == "" || endReason == meeting.EndReasonNormal {
		w.buildReport()
	} else {
		w.log.Info().Str("reason", endReason).Msg("abnormal end, report skipped")
	}

	w.store.CleanEphemeral()
	// The diagnostic from an abnormal end must survive the final reset so
	// the status endpoint can show it.
	prev := w.store.WorkerStatus()
	if err := w.store.ResetWorkerStatus(ipc.WorkerStatus{
		Platform:      prev.Platform,
		StatusMessage: "Hazır",
		Error:         prev.Error,
	}); err != nil {
		w.log.Warn().Err(err).Msg("final status write failed")
	}
	w.store.DeleteJob()
	w.log.Info().Msg("meeting job finished")
}

func (w *Worker) closeClient(client meeting.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		w.log.Warn().Err(err).Msg("browser close reported an error")
	}
}

// stopRecorder signals the recorder and waits for its drain before killing.
func (w *Worker) stopRecorder(rec subprocess) {
	if rec == nil {
		return
	}
	w.log.Info().Msg("stopping recorder")
	if err := w.store.TouchStopSignal(); err != nil {
		w.log.Warn().Err(err).Msg("stop signal write failed")
	}
	if !rec.Wait(w.recorderWait) {
		w.log.Warn().Msg("recorder did not stop in time, killing")
		rec.Kill()
	}
	if rs, ok := w.store.RecorderStatus(); ok {
		w.log.Info().Int("segments_sent", rs.SegmentsSent).Int("segments_skipped", rs.SegmentsSkipped).
			Msg("recorder finished")
	} else {
		w.log.Warn().Msg("recorder left no status file")
	}
}

func (w *Worker) buildReport() {
	w.updateStatus(func(ws *ipc.WorkerStatus) {
		ws.StatusMessage = "Rapor hazırlanıyor..."
	})
	if err := w.runReport(context.Background()); err != nil {
		metrics.ReportsTotal.WithLabelValues("error").Inc()
		w.log.Error().Err(err).Msg("report build failed")
		return
	}
	metrics.ReportsTotal.WithLabelValues("ok").Inc()
	w.log.Info().Msg("report generated")
}

func (w *Worker) updateStatus(fn func(*ipc.WorkerStatus)) {
	if err := w.store.UpdateWorkerStatus(fn); err != nil {
		w.log.Warn().Err(err).Msg("status write failed")
	}
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
