package core

// streaming.go provides io.Reader wrappers used while reading uploads:
//
//   - SizeLimitReader: fails with ErrTooLarge once a byte budget is exceeded
//   - UTF8Sanitizer: replaces invalid UTF-8 bytes with '?' on the fly
//
// Both keep memory at O(buffer) regardless of input size.

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrTooLarge is returned when an upload exceeds its size budget.
var ErrTooLarge = errors.New("file too large")

// SizeLimitReader reads at most Max bytes from R. Reading a byte beyond the
// budget fails with an error wrapping ErrTooLarge instead of truncating, so
// an oversized file is never mistaken for a short one.
type SizeLimitReader struct {
	R   io.Reader
	Max int64

	read int64
}

// NewSizeLimitReader wraps r with a budget of max bytes.
func NewSizeLimitReader(r io.Reader, max int64) *SizeLimitReader {
	return &SizeLimitReader{R: r, Max: max}
}

// Read implements io.Reader.
func (l *SizeLimitReader) Read(p []byte) (int, error) {
	if l.read > l.Max {
		return 0, l.tooLarge()
	}
	// Allow one byte past the budget to detect overflow.
	if remaining := l.Max - l.read + 1; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.R.Read(p)
	l.read += int64(n)
	if l.read > l.Max {
		return n, l.tooLarge()
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (l *SizeLimitReader) BytesRead() int64 {
	return l.read
}

func (l *SizeLimitReader) tooLarge() error {
	return fmt.Errorf("%w: exceeds %d byte limit", ErrTooLarge, l.Max)
}

// UTF8Sanitizer wraps an io.Reader and replaces each invalid UTF-8 byte with
// '?'. Multi-byte sequences split across reads are carried over to the next
// call so valid text is never damaged.
type UTF8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewUTF8Sanitizer returns a sanitizing reader over r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	if offset < len(s.pending) {
		// p cannot hold the carried bytes; hand out what fits.
		s.pending = append(s.pending[:0], s.pending[offset:]...)
		return offset, nil
	}
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Unless atEOF, a trailing partial rune is held back in pending.
func (s *UTF8Sanitizer) sanitize(data []byte, atEOF bool) int {
	end := len(data)
	if !atEOF {
		if tail := partialRuneTail(data); tail > 0 {
			s.pending = append(s.pending, data[end-tail:]...)
			end -= tail
		}
	}
	if utf8.Valid(data[:end]) {
		return end
	}

	write := 0
	for read := 0; read < end; {
		r, size := utf8.DecodeRune(data[read:end])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

// partialRuneTail returns how many bytes at the end of data begin a
// multi-byte rune that is not complete yet.
func partialRuneTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if utf8.RuneStart(b) {
			if b >= utf8.RuneSelf && !utf8.FullRune(data[len(data)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}
