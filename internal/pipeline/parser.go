package pipeline

import (
	"fmt"
	"strings"
)

// Split breaks a trimmed line into the token lists of its stages. The line
// is split on Separator, then every piece on runs of whitespace.
func Split(line string) ([][]string, error) {
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyInput
	}
	pieces := strings.Split(line, Separator)
	out := make([][]string, 0, len(pieces))
	for i, piece := range pieces {
		tokens := strings.Fields(piece)
		if len(tokens) == 0 {
			return nil, fmt.Errorf("stage %d: %w", i, ErrEmptyStage)
		}
		out = append(out, tokens)
	}
	return out, nil
}

// Resolve turns the tokens of one stage into a Stage. A leading exec or
// fork token selects the mode and must be followed by the command.
func Resolve(tokens []string) (Stage, error) {
	if len(tokens) == 0 {
		return Stage{}, ErrEmptyStage
	}

	mode := ModeDefault
	switch tokens[0] {
	case TokenExec:
		mode = ModeExec
	case TokenFork:
		mode = ModeFork
	}
	if mode != ModeDefault {
		if len(tokens) < 2 {
			return Stage{}, fmt.Errorf("%s: %w", tokens[0], ErrMissingModeArgument)
		}
		tokens = tokens[1:]
	}

	return Stage{
		Mode:    mode,
		Command: tokens[0],
		Args:    tokens[1:],
	}, nil
}

// Parse splits and resolves every stage of line. The first failing stage
// aborts the whole line; nothing is dispatched for it.
func Parse(line string) (*Pipeline, error) {
	raw, err := Split(line)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Stages: make([]Stage, 0, len(raw))}
	for i, tokens := range raw {
		stage, err := Resolve(tokens)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
		p.Stages = append(p.Stages, stage)
	}
	return p, nil
}
