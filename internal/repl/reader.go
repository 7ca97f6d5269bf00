package repl

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/marcelocantos/pipesh/internal/pipeline"
)

// LineReader reads one trimmed line per call.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r. The reader buffers ahead, so when r is also the
// stdin of spawned children, input it has already consumed never reaches
// them. A terminal hands over one line per read, which keeps interactive
// use unaffected. Piped input can be lost this way.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next line with surrounding whitespace removed.
// A blank line yields pipeline.ErrEmptyInput. io.EOF is returned only once
// no text is left; a final line without a newline is still delivered.
func (lr *LineReader) ReadLine() (string, error) {
	raw, err := lr.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && raw != "") {
		return "", err
	}
	line := strings.TrimSpace(raw)
	if line == "" {
		return "", pipeline.ErrEmptyInput
	}
	return line, nil
}
