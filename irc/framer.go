package irc

import (
	"bytes"
)

// MaxLineLength is the longest accepted line, CRLF included.
const MaxLineLength = 512

var crlf = []byte("\r\n")

// Framer turns a connection's byte stream into CRLF terminated lines.
// It is not safe for concurrent use; each connection owns one.
type Framer struct {
	buf []byte

	// discarding is set after an unterminated overflow was reported, until
	// the CRLF ending that line arrives.
	discarding bool
}

// Feed appends raw bytes read from the connection.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Take removes and returns every complete line in the buffer, without their
// terminators. Empty lines are dropped. tooLong counts lines that were
// rejected for exceeding MaxLineLength; each one deserves a 417 reply.
func (f *Framer) Take() (lines []string, tooLong int) {
	start := 0
	for {
		i := bytes.Index(f.buf[start:], crlf)
		if i < 0 {
			break
		}
		line := f.buf[start : start+i]
		start += i + len(crlf)

		switch {
		case f.discarding:
			f.discarding = false
		case len(line)+len(crlf) > MaxLineLength:
			tooLong++
		case len(line) == 0:
		default:
			lines = append(lines, string(line))
		}
	}
	f.buf = append(f.buf[:0], f.buf[start:]...)

	if f.overflowing() {
		// Keep a dangling CR so a CRLF split across reads is still seen.
		keepCR := f.buf[len(f.buf)-1] == '\r'
		f.buf = f.buf[:0]
		if keepCR {
			f.buf = append(f.buf, '\r')
		}
		if !f.discarding {
			f.discarding = true
			tooLong++
		}
	}

	return lines, tooLong
}

// overflowing reports whether the pending, unterminated data can no longer
// become a legal line.
func (f *Framer) overflowing() bool {
	n := len(f.buf)
	limit := MaxLineLength - len(crlf)
	if n <= limit {
		return false
	}
	// 510 content bytes plus the CR of a CRLF still in flight
	return !(n == limit+1 && f.buf[n-1] == '\r')
}

// Buffered returns the number of bytes waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
