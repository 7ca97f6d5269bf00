package builtin

import (
	"context"
	"io"
)

// Quit terminates the shell. Any pipeline still being built for the
// current line is abandoned.
type Quit struct{}

var _ Builtin = (*Quit)(nil)

func (q *Quit) Name() string        { return `\quit` }
func (q *Quit) Description() string { return "exit the shell with status 0" }

func (q *Quit) Run(context.Context, []string, io.Writer, io.Writer) error {
	return ErrQuit
}
