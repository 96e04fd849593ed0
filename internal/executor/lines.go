package executor

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"strings"
)

// lineReader turns a stream into a sequence of lines without a length limit.
// The line terminator is stripped; a final unterminated line is still yielded.
type lineReader struct {
	r   *bufio.Reader
	err error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

func (lr *lineReader) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			line, err := lr.r.ReadString('\n')
			if line != "" {
				line = strings.TrimSuffix(line, "\n")
				line = strings.TrimSuffix(line, "\r")
				if !yield(line) {
					// Keep draining so the writer is never blocked.
					_, _ = io.Copy(io.Discard, lr.r)
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					lr.err = err
				}
				return
			}
		}
	}
}

func (lr *lineReader) Err() error {
	return lr.err
}
