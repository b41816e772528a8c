package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sesly/sesly-engine/internal/config"
	"github.com/sesly/sesly-engine/internal/ipc"
	"github.com/sesly/sesly-engine/internal/logging"
	"github.com/sesly/sesly-engine/internal/worker"
)

var version = "dev"

// sesly-worker attends a single meeting and exits. The engine normally runs
// the worker in-process; this binary exists for manual runs and debugging.
func main() {
	platformName := flag.String("platform", ipc.PlatformZoom, "meeting platform (zoom, teams, meet)")
	envFile := flag.String("env", "", "path to .env file")
	workDir := flag.String("workdir", "", "working directory (overrides WORK_DIR)")
	title := flag.String("title", "", "meeting title")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: sesly-worker [flags] <meeting-url>")
		os.Exit(2)
	}
	meetingURL := flag.Arg(0)

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile, WorkDir: *workDir})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.AbsLogDir(), "worker.log")
	log.Info().Str("version", version).Str("platform", *platformName).Msg("sesly-worker starting")

	if !ipc.ValidPlatform(*platformName) {
		log.Fatal().Str("platform", *platformName).Msg("unsupported platform")
	}

	store := ipc.NewStore(cfg.WorkDir, log)
	if err := store.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare work directories")
	}

	job := ipc.Job{
		Active:         true,
		Platform:       *platformName,
		MeetingURL:     meetingURL,
		BotDisplayName: cfg.BotName,
		Title:          *title,
		CreatedAt:      time.Now(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.New(cfg, store, log).Run(ctx, job); err != nil {
		log.Fatal().Err(err).Msg("meeting job failed")
	}
	log.Info().Msg("sesly-worker stopped")
}
