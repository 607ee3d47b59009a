// Package console reads operator answers from a terminal.
package console

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type line struct {
	s   string
	err error
}

// LineReader hands out input one line at a time to every prompt that shares
// it. A read abandoned because its context ended stays pending, and the next
// ReadLine receives that line, so no prompt takes an answer meant for another.
type LineReader struct {
	in *bufio.Reader

	mu      sync.Mutex
	pending chan line
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{in: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator. It returns io.EOF
// only when the input ends with no text left, and ctx.Err() when ctx ends
// first.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.pending == nil {
		ch := make(chan line, 1)
		go func() {
			s, err := r.in.ReadString('\n')
			ch <- line{s, err}
		}()
		r.pending = ch
	}
	ch := r.pending
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-ch:
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()
		s := strings.TrimRight(l.s, "\r\n")
		if l.err != nil && (l.err != io.EOF || s == "") {
			return "", l.err
		}
		return s, nil
	}
}
