package pipeline

import (
	"errors"
	"fmt"

	"github.com/marcelocantos/pipesh/internal/builtin"
)

// ── Line-level errors ────────────────────────────────────────────────

var (
	ErrEmptyInput          = errors.New("empty input")
	ErrEmptyStage          = errors.New("empty stage")
	ErrMissingModeArgument = errors.New("missing command after mode")

	// ErrQuit stops the shell with status 0.
	ErrQuit = builtin.ErrQuit
)

// ── Stage-level errors ───────────────────────────────────────────────

var (
	ErrChdir = builtin.ErrChdir
	ErrSpawn = errors.New("spawn failed")
	ErrExec  = errors.New("exec failed")
	ErrFork  = errors.New("fork failed")
	ErrWait  = errors.New("wait failed")
)

// Operations recorded in StageError.Op.
const (
	OpSpawn   = "spawn"
	OpExec    = "exec"
	OpFork    = "fork"
	OpWait    = "wait"
	OpBuiltin = "builtin"
)

var opErrors = map[string]error{
	OpSpawn: ErrSpawn,
	OpExec:  ErrExec,
	OpFork:  ErrFork,
	OpWait:  ErrWait,
}

// StageError is a failure of one stage. It matches the sentinel for its
// operation with errors.Is, and unwraps to the operating-system error.
type StageError struct {
	Index   int    // zero-based stage position
	Command string // command as typed
	Op      string // spawn, exec, fork, wait or builtin
	Err     error
}

func (e *StageError) Error() string {
	if e.Op == OpBuiltin {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Command, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool {
	sentinel, ok := opErrors[e.Op]
	return ok && sentinel == target
}

// ExitError reports an external command that exited with a non-zero status.
// It is informational: the command's own stderr is the diagnostic.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode extracts the status carried by err: 0 for nil, the code of an
// *ExitError, and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
