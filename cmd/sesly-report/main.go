package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/database"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/logging"
	"github.com/sesly/sesly-engine/internal/report"
	"github.com/sesly/sesly-engine/internal/storage"
	"github.com/sesly/sesly-engine/internal/transcribe"
)

var version = "dev"

const reportDeadline = 10 * time.Minute

// sesly-report builds the meeting report for whatever transcript and
// activity data the work directory holds, then exits. The worker runs it as
// a subprocess so a report crash cannot take the meeting session down.
func main() {
	envFile := flag.String("env", "", "path to .env file")
	workDir := flag.String("workdir", "", "working directory (overrides WORK_DIR)")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile, WorkDir: *workDir})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.AbsLogDir(), "report.log")
	log.Info().Str("version", version).Msg("sesly-report starting")

	store := ipc.NewStore(cfg.WorkDir, log)

	ctx, cancel := context.WithTimeout(context.Background(), reportDeadline)
	defer cancel()

	var gen transcribe.TextGenerator
	if cfg.GeminiAPIKey != "" {
		gen = transcribe.NewGemini("", cfg.GeminiAPIKey, cfg.ReportModel, 2*time.Minute, transcribe.SafetyAllOff)
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, report will use the raw transcript")
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

	if err := report.New(cfg, store, gen, objects, meetings, log).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("report build failed")
	}
	log.Info().Msg("sesly-report finished")
}
