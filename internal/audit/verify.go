package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrBrokenChain is matched by every integrity failure Verify reports.
var ErrBrokenChain = errors.New("audit chain broken")

// ChainError locates the first entry that breaks the chain.
type ChainError struct {
	Line   int    // 1-based line in the file
	LineID string // line_id of the offending entry, if it has one
	Reason string
}

func (e *ChainError) Error() string {
	if e.LineID == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d (%s): %s", e.Line, e.LineID, e.Reason)
}

func (e *ChainError) Is(target error) bool { return target == ErrBrokenChain }

// Verify walks the log at path from the genesis hash and returns the first
// *ChainError found, or nil. An empty log is valid.
func Verify(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	prev := genesisHash()
	var seq uint64
	for i, raw := range splitLines(data) {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return &ChainError{Line: i + 1, Reason: "invalid JSON: " + err.Error()}
		}
		if reason := check(e, seq+1, prev); reason != "" {
			return &ChainError{Line: i + 1, LineID: e.LineID, Reason: reason}
		}
		prev, seq = e.Hash, e.Seq
	}
	return nil
}

// check returns why e cannot follow an entry with hash prev, or "".
func check(e Entry, wantSeq uint64, prev string) string {
	switch {
	case e.LineID == "":
		return "missing line_id"
	case e.Seq != wantSeq:
		return fmt.Sprintf("sequence gap: expected %d, got %d", wantSeq, e.Seq)
	case e.PrevHash != prev:
		return fmt.Sprintf("prev_hash mismatch: expected %s, got %s", abbrev(prev), abbrev(e.PrevHash))
	}
	if sum := computeHash(e); e.Hash != sum {
		return fmt.Sprintf("hash mismatch: expected %s, got %s", abbrev(sum), abbrev(e.Hash))
	}
	return ""
}

// abbrev shortens a hash for messages. Tampered entries may carry hashes
// of any length, including none.
func abbrev(h string) string {
	const n = 16
	switch {
	case h == "":
		return `""`
	case len(h) <= n:
		return h
	default:
		return h[:n] + "..."
	}
}

// Tail returns the last n entries of the log, skipping lines that do not
// decode.
func Tail(path string, n int) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	lines := splitLines(data)
	n = max(0, min(n, len(lines)))

	entries := make([]Entry, 0, n)
	for _, raw := range lines[len(lines)-n:] {
		var e Entry
		if json.Unmarshal(raw, &e) == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
