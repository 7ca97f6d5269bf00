package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
)

// RootDir is where cd goes when called without an argument.
const RootDir = "/"

// Cd changes the process-wide working directory. Every process spawned
// afterwards inherits it.
type Cd struct{}

var _ Builtin = (*Cd)(nil)

func (c *Cd) Name() string        { return "cd" }
func (c *Cd) Description() string { return "change the working directory (default /)" }

func (c *Cd) Run(_ context.Context, args []string, _, _ io.Writer) error {
	target := RootDir
	if len(args) > 0 {
		target = args[0]
	}
	if err := os.Chdir(target); err != nil {
		return fmt.Errorf("%w %s: %w", ErrChdir, target, unwrapPath(err))
	}
	return nil
}

// unwrapPath drops the *PathError wrapper so the message does not repeat
// the operation and path.
func unwrapPath(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}
