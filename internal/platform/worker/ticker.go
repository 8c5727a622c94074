package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// TickerTask represents a task triggered by a ticker.
type TickerTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)

	// RunOnStart runs the task once before the first tick.
	RunOnStart bool
}

// TickerConfig configures a ticker-based worker loop.
type TickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Tasks are the ticker-triggered tasks to run. Each task gets its own
	// goroutine, so a slow task never delays another.
	Tasks []TickerTask

	// Logger for the worker.
	Logger *zerolog.Logger
}

// TickerLoop runs every task on its own ticker until ctx is canceled. A task
// never overlaps with itself. Tasks with a non-positive interval are skipped.
// Returns a wrapped context error when the context is canceled.
func TickerLoop(ctx context.Context, cfg TickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Int("tasks", len(cfg.Tasks)).Msg("starting ticker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("ticker loop stopped")

	var wg sync.WaitGroup

	for _, task := range cfg.Tasks {
		if task.Interval <= 0 || task.Run == nil {
			continue
		}

		wg.Add(1)

		go func(task TickerTask) {
			defer wg.Done()

			runTask(ctx, task, logger)
		}(task)
	}

	wg.Wait()
	<-ctx.Done()

	return fmt.Errorf("ticker loop %s: %w", cfg.Name, ctx.Err())
}

func runTask(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	if task.RunOnStart {
		logger.Debug().Str(logFieldTask, task.Name).Msg("running initial task")
		runOnce(ctx, task, logger)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug().Str(logFieldTask, task.Name).Msg("ticker fired")
			runOnce(ctx, task, logger)
		}
	}
}

func runOnce(ctx context.Context, task TickerTask, logger *zerolog.Logger) {
	defer RecoverPanic(logger, task.Name)

	task.Run(ctx)
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
