// Package repl runs the interactive prompt loop.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/marcelocantos/pipesh/internal/audit"
	"github.com/marcelocantos/pipesh/internal/pipeline"
)

// ErrEndOfInput is returned by Run when stdin closes before \quit.
var ErrEndOfInput = errors.New("end of input")

// Shell ties the prompt, the line reader and the pipeline runner together.
type Shell struct {
	Prompt string
	Runner *pipeline.Runner
	Audit  *audit.Logger // optional
	Logger *zap.Logger

	in     *LineReader
	stdout io.Writer
	stderr io.Writer
	tty    bool
}

// New returns a shell reading lines from stdin. The prompt goes to stdout,
// diagnostics to stderr.
func New(prompt string, runner *pipeline.Runner, stdin io.Reader, stdout, stderr io.Writer) *Shell {
	s := &Shell{
		Prompt: prompt,
		Runner: runner,
		Logger: zap.NewNop(),
		in:     NewLineReader(stdin),
		stdout: stdout,
		stderr: stderr,
	}
	if f, ok := stdin.(*os.File); ok {
		s.tty = term.IsTerminal(int(f.Fd()))
	}
	return s
}

// Run loops until \quit, end of input, or a failure that leaves the shell
// unable to continue. Only \quit returns nil.
func (s *Shell) Run(ctx context.Context) error {
	if s.Audit != nil {
		s.Logger.Info("audit trail", zap.String("path", s.Audit.Path()))
	}
	for {
		fmt.Fprint(s.stdout, s.Prompt)

		line, err := s.in.ReadLine()
		switch {
		case err == nil:
		case errors.Is(err, pipeline.ErrEmptyInput):
			fmt.Fprintln(s.stderr, "pipesh: Empty!")
			continue
		case errors.Is(err, io.EOF):
			if s.tty {
				fmt.Fprintln(s.stdout)
			}
			return ErrEndOfInput
		default:
			return fmt.Errorf("read line: %w", err)
		}

		res, err := s.Runner.RunLine(ctx, line)
		s.record(res, err)

		switch {
		case err == nil:
		case errors.Is(err, pipeline.ErrQuit):
			return nil
		case errors.Is(err, pipeline.ErrWait):
			return err
		default:
			fmt.Fprintf(s.stderr, "pipesh: %v\n", err)
		}
	}
}

// record appends the line to the audit trail. Failures are logged only.
func (s *Shell) record(res *pipeline.Result, err error) {
	if s.Audit == nil || res == nil {
		return
	}
	rec := audit.Record{
		LineID:   res.ID,
		Line:     res.Line,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}
	if res.Pipeline != nil {
		rec.Commands = res.Pipeline.Commands()
		rec.Modes = res.Pipeline.Modes()
	}
	if err != nil && !errors.Is(err, pipeline.ErrQuit) {
		rec.Err = err
	}
	rec.Cwd, _ = os.Getwd()
	if err := s.Audit.Log(rec); err != nil {
		s.Logger.Warn("audit", zap.Error(err))
	}
}
