package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exit statuses recorded for stages that never produced a process.
const (
	StatusFailed    = 1
	StatusCannotRun = 126
	StatusNotFound  = 127
)

// Result describes one dispatched line.
type Result struct {
	ID       string
	Line     string
	Pipeline *Pipeline
	ExitCode int // status of the last stage
	Duration time.Duration
}

// Runner drives a line through parsing, dispatch and the final wait.
type Runner struct {
	Executor *Executor
	Logger   *zap.Logger
}

// NewRunner returns a runner using e.
func NewRunner(e *Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Executor: e, Logger: logger}
}

// RunLine parses line and runs it. Parse errors are returned before
// anything is dispatched. ErrQuit and wait failures are returned too;
// every other stage failure is reported and the pipeline carries on.
func (r *Runner) RunLine(ctx context.Context, line string) (*Result, error) {
	res := &Result{ID: uuid.NewString(), Line: line}

	p, err := Parse(line)
	if err != nil {
		res.ExitCode = StatusFailed
		return res, err
	}
	res.Pipeline = p

	start := time.Now()
	res.ExitCode, err = r.Run(ctx, p)
	res.Duration = time.Since(start)

	r.Logger.Info("pipeline finished",
		zap.String("line_id", res.ID),
		zap.Strings("commands", p.Commands()),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.Error(err),
	)
	return res, err
}

// Run dispatches the stages of p strictly left to right, then waits on
// the last one. It returns the exit status of the last stage.
func (r *Runner) Run(ctx context.Context, p *Pipeline) (int, error) {
	var slot Slot
	status := 0
	n := len(p.Stages)

	for i, stage := range p.Stages {
		last := i == n-1
		err := r.Executor.Execute(ctx, i, stage, &slot, last)
		switch {
		case err == nil:
			status = 0
		case errors.Is(err, errDiverged):
			slot.Clear()
			return 0, nil
		case errors.Is(err, ErrQuit):
			r.Logger.Debug("quit", zap.Int("stage", i), zap.Bool("pipeline_pending", !slot.Empty()))
			slot.Clear()
			return 0, ErrQuit
		default:
			// The stage is gone; the next one reads from the terminal.
			r.Executor.report(err)
			slot.Clear()
			status = statusFor(err)
		}
	}

	h := slot.Take()
	if h == nil {
		return status, nil
	}
	err := h.Wait()
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, nil
	}
	if err != nil {
		return StatusFailed, err
	}
	return 0, nil
}

func statusFor(err error) int {
	if !errors.Is(err, ErrSpawn) && !errors.Is(err, ErrExec) {
		return StatusFailed
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return StatusNotFound
	}
	return StatusCannotRun
}
