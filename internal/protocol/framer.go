package protocol

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// DefaultMaxLine bounds the partial line held between reads.
const DefaultMaxLine = 4 * 1024

// Framer reassembles lines from arbitrary byte chunks.
type Framer struct {
	buf     []byte
	maxLine int
}

// NewFramer creates a framer that discards a partial line longer than
// maxLine bytes. maxLine <= 0 selects DefaultMaxLine.
func NewFramer(maxLine int) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &Framer{maxLine: maxLine}
}

// Feed appends chunk and returns every complete non-empty line, trimmed of
// surrounding whitespace including a trailing \r. The trailing partial line
// is kept for the next call.
//
// If the buffered bytes are not valid UTF-8 the whole buffer is discarded
// and ErrDecodeFault returned with no lines. If the partial line outgrows
// the limit it is discarded and ErrDecodeFault returned alongside the lines
// already extracted.
func (f *Framer) Feed(chunk []byte) ([]string, error) {
	f.buf = append(f.buf, chunk...)
	if !decodable(f.buf) {
		n := len(f.buf)
		f.buf = f.buf[:0]
		return nil, fmt.Errorf("%w: invalid utf-8, dropped %d bytes", ErrDecodeFault, n)
	}

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(f.buf[:i])
		if len(line) > 0 {
			lines = append(lines, string(line))
		}
		f.buf = f.buf[i+1:]
	}
	// Compact so the backing array doesn't grow without bound.
	f.buf = append([]byte(nil), f.buf...)

	if len(f.buf) > f.maxLine {
		n := len(f.buf)
		f.buf = nil
		return lines, fmt.Errorf("%w: line exceeds %d bytes, dropped %d bytes", ErrDecodeFault, f.maxLine, n)
	}
	return lines, nil
}

// Buffered returns the pending partial line.
func (f *Framer) Buffered() string {
	return string(f.buf)
}

// Reset drops any pending partial line.
func (f *Framer) Reset() {
	f.buf = nil
}

// decodable reports whether b is valid UTF-8, allowing an incomplete final
// rune that the next chunk may complete.
func decodable(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		tail := b[len(b)-i:]
		if utf8.RuneStart(tail[0]) {
			return !utf8.FullRune(tail) && utf8.Valid(b[:len(b)-i])
		}
	}
	return false
}
