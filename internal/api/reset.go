package api

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/platform"
)

// A transcript shorter than this is noise; don't bother salvaging a report
// for it during a force reset.
const salvageMinRunes = 50

const salvageTimeout = 2 * time.Minute

// ResetHandler implements the emergency stop. It tries to save a report from
// whatever transcript exists, then tears down every process and state file
// regardless of what the worker was doing.
type ResetHandler struct {
	cfg     *config.Config
	store   *ipc.Store
	control WorkerController
	reports ReportRunner
	log     zerolog.Logger
}

func (h *ResetHandler) ForceReset(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Warn().Msg("force reset requested")

	// Queued first so a worker that is still polling sees it even if the
	// abort below races its next loop iteration.
	if err := h.store.WriteCommand(ipc.CommandForceReset); err != nil {
		log.Warn().Err(err).Msg("force reset command write failed")
	}

	h.salvageReport(r.Context(), log)

	if h.control != nil {
		h.control.Abort()
	}

	killed := platform.KillProcessesMatching([]string{"sesly-recorder", "sesly-worker"}, h.log)
	killed += platform.KillStaleFFmpeg(h.cfg.SegmentDir, h.log)

	cleaned := h.store.ForceResetFiles()

	job := ipc.Job{Active: false, BotDisplayName: h.cfg.BotName, CreatedAt: time.Now()}
	if err := h.store.WriteJob(job); err != nil {
		log.Warn().Err(err).Msg("inactive job write failed")
	}
	err := h.store.ResetWorkerStatus(ipc.WorkerStatus{
		StatusMessage: "Sistem sıfırlandı - Yeni toplantı için hazır",
	})
	if err != nil {
		log.Warn().Err(err).Msg("status reset failed")
	}

	log.Info().Int("killed", killed).Int("cleaned", len(cleaned)).Msg("force reset complete")
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"message":          "Sistem zorla sıfırlandı",
		"cleaned_files":    cleaned,
		"killed_processes": killed,
		"status":           "ready",
	})
}

// salvageReport builds a report from the current transcript before the reset
// wipes it. Best effort; a failure never blocks the reset.
func (h *ResetHandler) salvageReport(ctx context.Context, log *zerolog.Logger) {
	if h.reports == nil {
		return
	}
	transcript := strings.TrimSpace(h.store.Transcript())
	if utf8.RuneCountInString(transcript) < salvageMinRunes {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, salvageTimeout)
	defer cancel()
	if err := h.reports.Run(rctx); err != nil {
		log.Warn().Err(err).Msg("transcript salvage report failed")
		return
	}
	log.Info().Msg("transcript salvaged into a report before reset")
}
