package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sesly/sesly-engine/internal/api"
	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/database"
	"github.com/sesly/sesly-engine/internal/dispatch"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/logging"
	"github.com/sesly/sesly-engine/internal/platform"
	"github.com/sesly/sesly-engine/internal/report"
	"github.com/sesly/sesly-engine/internal/storage"
	"github.com/sesly/sesly-engine/internal/transcribe"
)

var version = "dev"

const (
	sttTimeout    = 4 * time.Minute
	reportTimeout = 2 * time.Minute
)

func main() {
	startTime := time.Now()

	envFile := flag.String("env", "", "path to .env file")
	host := flag.String("host", "", "API listen host (overrides API_HOST)")
	port := flag.String("port", "", "API listen port (overrides API_PORT)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	workDir := flag.String("workdir", "", "working directory (overrides WORK_DIR)")
	botName := flag.String("bot-name", "", "bot display name (overrides BOT_NAME)")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:  *envFile,
		APIHost:  *host,
		APIPort:  *port,
		LogLevel: *logLevel,
		WorkDir:  *workDir,
		BotName:  *botName,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.AbsLogDir(), "engine.log")
	log.Info().Str("version", version).Str("addr", cfg.ListenAddr()).Msg("sesly-engine starting")

	store := ipc.NewStore(cfg.WorkDir, log)
	if err := store.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare work directories")
	}

	if display := platform.EnsureDisplay(); display != "" {
		log.Info().Str("display", display).Msg("display configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := api.Deps{Store: store}

	if cfg.GeminiAPIKey != "" {
		stt := transcribe.NewGemini("", cfg.GeminiAPIKey, cfg.GeminiModel, sttTimeout, transcribe.SafetySTT)
		deps.Transcriber = transcribe.NewService(stt, store, log)
		deps.Summarizer = transcribe.NewGemini("", cfg.GeminiAPIKey, cfg.ReportModel, reportTimeout, transcribe.SafetyAllOff)
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, transcription and summaries disabled")
	}

	objects, err := storage.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure object storage")
	}
	meetings, err := database.New(ctx, cfg, log.With().Str("component", "database").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect meeting store")
	}
	defer meetings.Close()

	if deps.Summarizer != nil {
		deps.Reports = report.New(cfg, store, deps.Summarizer, objects, meetings, log)
	}

	dispatcher := dispatch.New(cfg, store, log)
	dispatcher.Startup()
	deps.Control = dispatcher

	srv := api.NewServer(cfg, deps, version, startTime, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("engine exited with error")
	}
	log.Info().Msg("sesly-engine stopped")
}
