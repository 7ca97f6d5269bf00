package audit

import "time"

// Entry represents a single audit log record: one dispatched input line.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"ts"`
	PrevHash string    `json:"prev_hash"`
	LineID   string    `json:"line_id"`         // unique per dispatched line
	Line     string    `json:"line"`            // the line as typed, trimmed
	Commands []string  `json:"commands"`        // command of each stage
	Modes    []string  `json:"modes"`           // default, exec or fork per stage
	ExitCode int       `json:"exit_code"`       // status of the last stage
	Error    string    `json:"error,omitempty"` // line-level error, if any
	Duration float64   `json:"duration_ms"`     // dispatch-to-exit time in milliseconds
	Cwd      string    `json:"cwd"`             // working directory after the line ran
	Hash     string    `json:"hash"`            // SHA-256 of this entry (with hash field empty)
}

// Record is what the shell knows about a line once it has run.
type Record struct {
	LineID   string
	Line     string
	Commands []string
	Modes    []string
	ExitCode int
	Err      error
	Duration time.Duration
	Cwd      string
}
