package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// ErrLineTooLong is the cause of the ParseError recorded for a line longer
// than the configured maximum. The line is skipped and reading resumes at the
// next newline.
var ErrLineTooLong = errors.New("line too long")

// lineReader splits input into lines while holding at most limit bytes of a
// line in memory. Longer lines are consumed and reported as too long.
type lineReader struct {
	r       *bufio.Reader
	limit   int
	buf     []byte
	tooLong bool

	// consumed counts bytes read from the source, partial lines included.
	consumed int64
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{
		r:     bufio.NewReaderSize(r, min(initialBufferBytes, limit)),
		limit: limit,
	}
}

// next returns the next complete line without its line ending. At the end of
// the input it returns io.EOF and keeps any unterminated tail buffered, so a
// later call can finish the line once more data arrives.
func (lr *lineReader) next() (string, bool, error) {
	for {
		chunk, err := lr.r.ReadSlice('\n')
		lr.consumed += int64(len(chunk))

		if !lr.tooLong {
			lr.buf = append(lr.buf, chunk...)
			if len(trimEOL(lr.buf)) > lr.limit {
				lr.tooLong = true
				lr.buf = lr.buf[:0]
			}
		}

		if err == nil {
			text, tooLong := lr.take()
			return text, tooLong, nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", false, err
		}
	}
}

// pending reports whether an unterminated line is buffered.
func (lr *lineReader) pending() bool {
	return len(lr.buf) > 0 || lr.tooLong
}

// take returns the buffered line and clears it.
func (lr *lineReader) take() (string, bool) {
	text, tooLong := string(trimEOL(lr.buf)), lr.tooLong

	lr.buf = lr.buf[:0]
	lr.tooLong = false
	return text, tooLong
}

// reset starts over on r, dropping any buffered line.
func (lr *lineReader) reset(r io.Reader) {
	lr.r.Reset(r)
	lr.buf = lr.buf[:0]
	lr.tooLong = false
	lr.consumed = 0
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
