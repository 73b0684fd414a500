// Package framer turns a child process's stdout byte stream into a sequence
// of JSON-RPC lines, splitting on "\n" or "\r\n" and buffering partial tails.
package framer

import "strings"

// Framer accumulates byte chunks and emits complete lines.
//
// It holds no goroutines or I/O of its own so the line-framing algorithm can
// be exercised directly against arbitrary chunk boundaries in tests.
type Framer struct {
	tail string
}

// New constructs an empty Framer.
func New() *Framer { return &Framer{} }

// Feed appends chunk to the tail buffer and returns every complete line it
// now contains, in order. Empty lines (after trimming "\r") are dropped.
// The new tail — the bytes after the last separator — is retained for the
// next call.
func (f *Framer) Feed(chunk []byte) []string {
	f.tail += string(chunk)

	var lines []string
	for {
		idx := strings.IndexByte(f.tail, '\n')
		if idx < 0 {
			break
		}
		line := f.tail[:idx]
		f.tail = f.tail[idx+1:]
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Tail returns the unterminated bytes buffered so far.
func (f *Framer) Tail() string { return f.tail }
