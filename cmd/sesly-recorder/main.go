package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/logging"
	"github.com/sesly/sesly-engine/internal/recorder"
)

var version = "dev"

func main() {
	platformName := flag.String("platform", "", "meeting platform (zoom, teams, meet)")
	envFile := flag.String("env", "", "path to .env file")
	workDir := flag.String("workdir", "", "working directory (overrides WORK_DIR)")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile, WorkDir: *workDir})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.AbsLogDir(), "recorder.log")
	log.Info().Str("version", version).Str("platform", *platformName).Msg("sesly-recorder starting")

	store := ipc.NewStore(cfg.WorkDir, log)
	if err := store.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare work directories")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := recorder.New(cfg, store, log).Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("recorder failed")
	}
	log.Info().Msg("sesly-recorder stopped")
}
