package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/builtin"
	"github.com/marcelocantos/pipesh/internal/config"
	"github.com/marcelocantos/pipesh/internal/daemon"
	"github.com/marcelocantos/pipesh/internal/logging"
	"github.com/marcelocantos/pipesh/internal/pipeline"
	"github.com/marcelocantos/pipesh/internal/repl"
)

func main() {
	// A re-executed copy of this binary may be carrying a detached job.
	daemon.Main()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipesh: config: %v\n", err)
		return 1
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Path: cfg.Log.Path})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipesh: log: %v\n", err)
		logger = zap.NewNop()
	}
	defer logger.Sync()

	// Leave the detacher nil rather than a nil *Launcher so fork mode
	// reports a clean failure.
	var detacher pipeline.Detacher
	if launcher, err := daemon.NewLauncher(cfg.Jobs.Dir, logger); err != nil {
		logger.Warn("fork mode unavailable", zap.Error(err))
	} else {
		detacher = launcher
	}

	exec := pipeline.NewExecutor(builtin.NewDefaultRegistry(), detacher, logger)
	runner := pipeline.NewRunner(exec, logger)

	shell := repl.New(cfg.Prompt, runner, os.Stdin, os.Stdout, os.Stderr)
	shell.Logger = logger
	if cfg.Audit.Enabled {
		shell.Audit = openAudit(cfg.Audit.Path, logger)
	}

	err = shell.Run(context.Background())

	if jobs, jerr := daemon.Running(cfg.Jobs.Dir); jerr == nil && len(jobs) > 0 {
		logger.Info("detached jobs still running", zap.Int("count", len(jobs)))
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, repl.ErrEndOfInput):
		return 1
	default:
		fmt.Fprintf(os.Stderr, "pipesh: %v\n", err)
		return 1
	}
}

// openAudit opens the audit trail. The shell runs without one if it
// cannot be opened; a broken chain is logged and appended to regardless.
func openAudit(path string, logger *zap.Logger) *audit.Logger {
	if err := audit.Verify(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("audit chain broken", zap.String("path", path), zap.Error(err))
	}
	l, err := audit.NewLogger(path)
	if err != nil {
		logger.Warn("audit disabled", zap.Error(err))
		return nil
	}
	return l
}
