package pipeline

import "strings"

// Separator splits a line into stages. It is matched literally: no
// quoting, no escaping, and "a|b" is a single stage.
const Separator = " | "

// Mode selects how an external stage is run.
type Mode int

const (
	ModeDefault Mode = iota // spawn a child and wire it into the pipeline
	ModeExec                // replace the shell process image
	ModeFork                // detach into a new session, never waited on
)

// Mode selector tokens. They are consumed before command resolution, so a
// program literally named exec or fork cannot be run as a bare command.
const (
	TokenExec = "exec"
	TokenFork = "fork"
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeExec:
		return "exec"
	case ModeFork:
		return "fork"
	default:
		return "mode(?)"
	}
}

// Stage is a single command in a pipeline.
type Stage struct {
	Mode    Mode
	Command string   // never empty
	Args    []string // remaining tokens
}

func (s Stage) String() string {
	var b strings.Builder
	if s.Mode != ModeDefault {
		b.WriteString(s.Mode.String())
		b.WriteByte(' ')
	}
	b.WriteString(s.Command)
	for _, a := range s.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

// Pipeline is an ordered chain of stages. Stage i's output feeds stage i+1.
type Pipeline struct {
	Stages []Stage
}

// Commands returns the command name of every stage.
func (p *Pipeline) Commands() []string {
	out := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Command
	}
	return out
}

// Modes returns the mode name of every stage.
func (p *Pipeline) Modes() []string {
	out := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Mode.String()
	}
	return out
}
