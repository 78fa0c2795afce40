// Package ndjson frames newline-delimited JSON streams.
//
// A Framer is fed raw bytes as they arrive from a pipe and hands back only
// complete lines; the unterminated tail is carried over to the next call.
// Reader and Writer wrap the Framer for blocking io.Reader consumption and
// serialized line output.
package ndjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framer splits a byte stream on '\n'. It is not safe for concurrent use;
// a single consumer owns it.
type Framer struct {
	buf []byte
}

// Feed appends p to the carry-over buffer and returns every complete line,
// trimmed of surrounding whitespace. Blank lines are skipped. The returned
// slices do not alias the internal buffer.
func (f *Framer) Feed(p []byte) [][]byte {
	f.buf = append(f.buf, p...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(f.buf[:i])
		f.buf = f.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		lines = append(lines, bytes.Clone(line))
	}

	// Compact so the backing array does not grow without bound.
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}
	return lines
}

// Remainder returns the trimmed unterminated tail, or nil if there is none.
func (f *Framer) Remainder() []byte {
	tail := bytes.TrimSpace(f.buf)
	if len(tail) == 0 {
		return nil
	}
	return bytes.Clone(tail)
}

// Reset drops any buffered partial line.
func (f *Framer) Reset() {
	f.buf = nil
}

// Buffered reports how many bytes are waiting for a line terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reader reads complete lines from an underlying stream.
type Reader struct {
	r       io.Reader
	pending [][]byte
	chunk   []byte
	framer  Framer
	err     error
}

const readChunkSize = 64 * 1024

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: make([]byte, readChunkSize)}
}

// ReadLine returns the next non-empty line. A final line without a trailing
// newline is returned before io.EOF.
func (r *Reader) ReadLine() ([]byte, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			if tail := r.framer.Remainder(); tail != nil {
				r.framer.Reset()
				return tail, nil
			}
			return nil, r.err
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.framer.Feed(r.chunk[:n])...)
		}
		if err != nil {
			r.err = err
		}
	}

	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, nil
}

// ErrClosed is returned by Writer after Close.
var ErrClosed = errors.New("ndjson: writer closed")

// Writer writes one JSON document per line. Writes are serialized so
// concurrent callers never interleave partial records.
type Writer struct {
	w      io.Writer
	mu     sync.Mutex
	closed bool
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// marshaler is implemented by outbound protocol messages that know how to
// serialize themselves.
type marshaler interface {
	Marshal() ([]byte, error)
}

// WriteJSON encodes v and writes it followed by '\n'.
func (w *Writer) WriteJSON(v interface{}) error {
	var (
		data []byte
		err  error
	)
	if m, ok := v.(marshaler); ok {
		data, err = m.Marshal()
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("ndjson: encode: %w", err)
	}
	return w.WriteRaw(data)
}

// WriteRaw writes an already-encoded document followed by '\n'.
func (w *Writer) WriteRaw(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	return nil
}

// Close marks the writer closed and closes the underlying writer if it is an
// io.Closer. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
