package notify

import (
	"bytes"
	"strings"
	"sync"
)

// Backlog keeps the last N log lines in a circular buffer. Thread safe.
type Backlog struct {
	size  int
	lines []string
	mu    sync.Mutex
}

// NewBacklog makes a backlog of size lines, zero size keeps nothing
func NewBacklog(size int) *Backlog {
	return &Backlog{size: size}
}

// Write satisfies io.Writer, each non-empty line is kept
func (b *Backlog) Write(p []byte) (int, error) {
	if b.size <= 0 {
		return len(p), nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for line := range bytes.SplitSeq(p, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		if len(b.lines) >= b.size {
			b.lines = b.lines[1:]
		}
		b.lines = append(b.lines, string(line))
	}
	return len(p), nil
}

// Lines returns a copy of kept lines, oldest first
func (b *Backlog) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := make([]string, len(b.lines))
	copy(res, b.lines)
	return res
}

// String returns kept lines joined with new lines
func (b *Backlog) String() string {
	return strings.Join(b.Lines(), "\n")
}
