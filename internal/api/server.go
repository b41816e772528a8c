// Package api is the engine's HTTP surface: the control plane the frontend
// talks to (start-bot, bot-command, bot-status, force-reset), the
// transcription endpoint the recorder posts segments to, and the report
// download routes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/metrics"
	"github.com/sesly/sesly-engine/internal/transcribe"
)

// Transcriber is the segment transcription pipeline the upload endpoint
// drives. *transcribe.Service implements it.
type Transcriber interface {
	TranscribeSegment(ctx context.Context, seg transcribe.Segment) (string, error)
	Append(text string) (transcribe.AppendResult, error)
}

// WorkerController is what force-reset and the busy check need from the
// dispatcher.
type WorkerController interface {
	Busy() bool
	Abort()
}

// ReportRunner builds the meeting report; force-reset uses it to salvage a
// transcript before wiping state.
type ReportRunner interface {
	Run(ctx context.Context) error
}

// Deps are the collaborators the handlers share. Transcriber, Summarizer,
// Control and Reports may be nil; the affected endpoints then degrade with
// an explicit error instead of failing at startup.
type Deps struct {
	Store       *ipc.Store
	Transcriber Transcriber
	Summarizer  transcribe.TextGenerator
	Control     WorkerController
	Reports     ReportRunner
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(CORS)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	bot := &BotHandler{cfg: cfg, store: deps.Store, control: deps.Control, summarizer: deps.Summarizer, log: log}
	tr := &TranscribeHandler{svc: deps.Transcriber, log: log}
	reset := &ResetHandler{cfg: cfg, store: deps.Store, control: deps.Control, reports: deps.Reports, log: log}
	files := &ReportFilesHandler{cfg: cfg, store: deps.Store, log: log}
	health := &HealthHandler{store: deps.Store, version: version, startTime: startTime}

	r.Post("/start-bot", bot.StartBot)
	r.Post("/bot-command", bot.BotCommand)
	r.Get("/bot-status", bot.BotStatus)
	r.Post("/clear-worker-error", bot.ClearWorkerError)

	r.Post("/transcribe-webm", tr.TranscribeWebM)
	r.Post("/force-reset", reset.ForceReset)

	r.Get("/latest-report", files.LatestReport)
	r.Get("/download-report/{name}", files.DownloadReport)
	r.Get("/download-transcript", files.DownloadTranscript)

	r.Get("/healthz", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		http: &http.Server{
			Addr:         cfg.ListenAddr(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log.With().Str("component", "http").Logger(),
	}
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
