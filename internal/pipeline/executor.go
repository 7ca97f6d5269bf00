package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/marcelocantos/pipesh/internal/builtin"
	"github.com/marcelocantos/pipesh/internal/daemon"
)

// Detacher starts a command the shell never tracks or waits on.
type Detacher interface {
	Detach(ctx context.Context, command string, args []string) (*daemon.Job, error)
}

// Replacer replaces the current process image with path. stdin, when not
// nil, becomes the new image's standard input. It returns only on failure.
type Replacer func(path string, argv, env []string, stdin *os.File) error

// Outcome is the result of an exec-mode stage.
type Outcome int

const (
	// Diverged means the process image was replaced. A real caller never
	// observes it because nothing of the caller is left to do so.
	Diverged Outcome = iota
	// Failed means the replacement call returned an error.
	Failed
)

// errDiverged tells the runner the shell image is gone and nothing more
// may be dispatched.
var errDiverged = errors.New("process image replaced")

// Executor runs one resolved stage at a time.
type Executor struct {
	Builtins *builtin.Registry
	Detacher Detacher
	Replace  Replacer

	// Terminal streams. Stdin feeds a stage with no predecessor, Stdout
	// receives the last stage's output, Stderr every stage's errors.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Logger *zap.Logger
}

// NewExecutor returns an executor wired to the process's own stdio.
func NewExecutor(builtins *builtin.Registry, detacher Detacher, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builtins != nil {
		for _, b := range builtins.All() {
			logger.Debug("builtin registered", zap.String("name", b.Name()), zap.String("description", b.Description()))
		}
	}
	return &Executor{
		Builtins: builtins,
		Detacher: detacher,
		Replace:  replaceProcess,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Logger:   logger,
	}
}

// Execute runs stage number index. slot holds the predecessor whose output
// becomes this stage's input; on return it holds this stage's handle, or
// nothing. last marks the stage whose output goes to the terminal.
//
// A failing stage returns a *StageError and leaves the slot empty; the
// rest of the pipeline can still run. ErrQuit is returned for \quit.
func (e *Executor) Execute(ctx context.Context, index int, stage Stage, slot *Slot, last bool) error {
	if e.Builtins != nil {
		if b, ok := e.Builtins.Lookup(stage.Command); ok {
			return e.runBuiltin(ctx, index, b, stage, slot)
		}
	}

	switch stage.Mode {
	case ModeExec:
		outcome, err := e.Exec(index, stage, slot)
		if outcome == Diverged {
			return errDiverged
		}
		return err
	case ModeFork:
		_, err := e.Fork(ctx, index, stage, slot)
		return err
	default:
		return e.Spawn(index, stage, slot, last)
	}
}

func (e *Executor) runBuiltin(ctx context.Context, index int, b builtin.Builtin, stage Stage, slot *Slot) error {
	// Builtins never consume a pipe; whatever flowed up to here is dropped.
	slot.Clear()

	e.Logger.Debug("builtin", zap.Int("stage", index), zap.String("command", b.Name()), zap.Strings("args", stage.Args))
	err := b.Run(ctx, stage.Args, e.Stdout, e.Stderr)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, builtin.ErrQuit):
		return ErrQuit
	default:
		return &StageError{Index: index, Command: stage.Command, Op: OpBuiltin, Err: err}
	}
}

// Spawn starts stage as a child process. Its stdin is the predecessor's
// captured output if there is one, the terminal otherwise. Its stdout is a
// fresh pipe unless last is set.
func (e *Executor) Spawn(index int, stage Stage, slot *Slot, last bool) error {
	prev := slot.Take()
	if prev != nil {
		defer prev.release()
	}

	cmd := exec.Command(stage.Command, stage.Args...)
	cmd.Stdin = e.Stdin
	if prev != nil && prev.out != nil {
		cmd.Stdin = prev.out
	}
	cmd.Stderr = e.Stderr

	var r, w *os.File
	if last {
		cmd.Stdout = e.Stdout
	} else {
		var err error
		r, w, err = os.Pipe()
		if err != nil {
			return &StageError{Index: index, Command: stage.Command, Op: OpSpawn, Err: err}
		}
		cmd.Stdout = w
	}

	err := cmd.Start()
	if w != nil {
		// The child has its own copy; ours would keep readers from seeing EOF.
		w.Close()
	}
	if err != nil {
		if r != nil {
			r.Close()
		}
		return &StageError{Index: index, Command: stage.Command, Op: OpSpawn, Err: err}
	}

	h := &Handle{Index: index, Stage: stage, cmd: cmd, out: r}
	slot.Put(h)
	e.Logger.Debug("spawned",
		zap.Int("stage", index),
		zap.String("command", stage.Command),
		zap.Int("pid", h.Pid()),
		zap.Bool("last", last),
	)
	return nil
}

// Exec replaces the shell with stage. The predecessor's output, if any,
// becomes the new image's stdin; stdout stays on the terminal since no
// later stage can exist once the shell is gone. On success the call does
// not return.
func (e *Executor) Exec(index int, stage Stage, slot *Slot) (Outcome, error) {
	prev := slot.Take()
	if prev != nil {
		defer prev.release()
	}

	fail := func(err error) (Outcome, error) {
		return Failed, &StageError{Index: index, Command: stage.Command, Op: OpExec, Err: err}
	}

	path, err := exec.LookPath(stage.Command)
	if err != nil {
		return fail(err)
	}
	if e.Replace == nil {
		return fail(errors.ErrUnsupported)
	}

	var stdin *os.File
	if prev != nil {
		stdin = prev.out
	}
	argv := append([]string{stage.Command}, stage.Args...)

	e.Logger.Info("replacing process image", zap.Int("stage", index), zap.String("path", path), zap.Strings("argv", argv))
	_ = e.Logger.Sync()

	if err := e.Replace(path, argv, os.Environ(), stdin); err != nil {
		return fail(err)
	}
	return Diverged, nil
}

// Fork starts stage fully detached. The slot is cleared: a detached job
// is disconnected from the pipeline and from the terminal's input.
func (e *Executor) Fork(ctx context.Context, index int, stage Stage, slot *Slot) (*daemon.Job, error) {
	slot.Clear()

	if e.Detacher == nil {
		return nil, &StageError{Index: index, Command: stage.Command, Op: OpFork, Err: errors.ErrUnsupported}
	}
	job, err := e.Detacher.Detach(ctx, stage.Command, stage.Args)
	if err != nil {
		return nil, &StageError{Index: index, Command: stage.Command, Op: OpFork, Err: err}
	}
	e.Logger.Debug("forked", zap.Int("stage", index), zap.String("command", stage.Command), zap.String("job", job.ID))
	return job, nil
}

// report prints a stage failure for the user.
func (e *Executor) report(err error) {
	fmt.Fprintf(e.Stderr, "pipesh: %v\n", err)
	e.Logger.Warn("stage failed", zap.Error(err))
}
