package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/goal-clip-bot/internal/app"
	"github.com/lueurxax/goal-clip-bot/internal/platform/config"
)

func main() {
	mode := flag.String("mode", "run", "Service mode (run, check, replay)")
	hours := flag.Int("hours", 2, "Hours of the fallback listing to replay (replay mode)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	runErr := runMode(ctx, application, *mode, *hours)

	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close application")
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(runErr).Msg("application error")
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(lvl).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode string, hours int) error {
	switch mode {
	case "run":
		return application.Run(ctx)
	case "check":
		return application.Check(ctx)
	case "replay":
		return application.Replay(ctx, hours)
	default:
		log.Fatalf("Usage: %s --mode=[run|check|replay] [--hours=N]", os.Args[0])

		return nil
	}
}
