package pipeline

import (
	"errors"
	"os"
	"os/exec"
)

// Handle is a running external stage. Until the next stage takes it, the
// handle owns the read end of the stage's captured stdout.
type Handle struct {
	Index int
	Stage Stage

	cmd *exec.Cmd
	out *os.File // nil for the last stage
}

// Pid returns the operating-system process id.
func (h *Handle) Pid() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Output returns the read end of the captured stdout, or nil when the
// stage writes straight to the terminal.
func (h *Handle) Output() *os.File { return h.out }

// Wait blocks until the process exits. A non-zero status is returned as
// *ExitError; any other error means the process could not be waited on.
func (h *Handle) Wait() error {
	h.closeOutput()
	err := h.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return &StageError{Index: h.Index, Command: h.Stage.Command, Op: OpWait, Err: err}
}

// release gives up the handle without waiting in the caller. Its captured
// output, if still unread, is discarded and the process is reaped in the
// background.
func (h *Handle) release() {
	h.closeOutput()
	go h.cmd.Wait() //nolint:errcheck
}

func (h *Handle) closeOutput() {
	if h.out != nil {
		h.out.Close()
		h.out = nil
	}
}

// Slot holds at most one in-flight handle: the predecessor whose output
// feeds the next stage. Handles are moved in and out, never shared.
type Slot struct {
	h *Handle
}

// Put stores h, releasing whatever the slot held before.
func (s *Slot) Put(h *Handle) {
	if s.h != nil && s.h != h {
		s.h.release()
	}
	s.h = h
}

// Take removes and returns the held handle, or nil.
func (s *Slot) Take() *Handle {
	h := s.h
	s.h = nil
	return h
}

// Peek returns the held handle without removing it.
func (s *Slot) Peek() *Handle { return s.h }

// Empty reports whether the slot holds nothing.
func (s *Slot) Empty() bool { return s.h == nil }

// Clear releases the held handle, discarding any pipe chain that would
// have flowed through it.
func (s *Slot) Clear() {
	if h := s.Take(); h != nil {
		h.release()
	}
}
