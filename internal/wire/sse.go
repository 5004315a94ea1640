package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tjfontaine/aiwire/internal/domain"
)

// DefaultMaxFrameSize bounds the pending-frame buffer.
const DefaultMaxFrameSize = 1 << 20

const readChunkSize = 4096

var doneMarker = []byte("[DONE]")

// SSEReader splits a server-sent events body into frames. A frame ends at a
// blank line; "data: [DONE]" is the terminator.
type SSEReader struct {
	body     io.ReadCloser
	maxFrame int

	buf        []byte
	scan       int
	chunk      []byte
	frames     int
	discarding bool
	readErr    error
	err        error

	closeOnce sync.Once
	closeErr  error
}

// SSEOption configures an SSEReader.
type SSEOption func(*SSEReader)

// WithMaxFrameSize sets the largest frame the reader will buffer. A larger
// frame is reported as malformed and skipped.
func WithMaxFrameSize(n int) SSEOption {
	return func(r *SSEReader) {
		if n > 0 {
			r.maxFrame = n
		}
	}
}

// NewSSEReader returns a reader that takes ownership of body.
func NewSSEReader(body io.ReadCloser, opts ...SSEOption) *SSEReader {
	r := &SSEReader{
		body:     body,
		maxFrame: DefaultMaxFrameSize,
		chunk:    make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next frame.
func (r *SSEReader) Next(ctx context.Context) (Frame, error) {
	if r.err != nil {
		return Frame{}, r.err
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, domain.NewTransportError("stream read canceled", err)
	}

	for {
		if r.discarding {
			i, n := r.boundary()
			if i < 0 {
				r.keepTail()
			} else {
				r.buf = r.buf[i+n:]
				r.discarding = false
			}
		}

		if !r.discarding {
			for {
				i, n := r.boundary()
				if i < 0 {
					break
				}
				block := r.buf[:i]
				r.buf = r.buf[i+n:]
				if len(block) > r.maxFrame {
					return Frame{}, r.oversized(block)
				}
				frame, ok := parseBlock(block)
				if !ok {
					continue
				}
				return r.emit(frame), nil
			}

			if len(r.buf) > r.maxFrame {
				pending := bytes.Clone(r.buf)
				r.keepTail()
				r.discarding = true
				return Frame{}, r.oversized(pending)
			}
		}

		if r.readErr != nil {
			return r.finish()
		}

		n, err := r.body.Read(r.chunk)
		r.buf = append(r.buf, r.chunk[:n]...)
		if err != nil {
			r.readErr = err
		}
	}
}

// finish reports the end of the feed once every complete frame was returned.
func (r *SSEReader) finish() (Frame, error) {
	pending := bytes.TrimSpace(r.buf)

	if errors.Is(r.readErr, io.EOF) {
		if len(pending) == 0 && !r.discarding {
			r.err = io.EOF
			return Frame{}, io.EOF
		}
		if !r.discarding {
			if frame, ok := parseBlock(pending); ok && frame.Kind == FrameTerminator {
				return r.emit(frame), nil
			}
		}
		r.err = io.EOF
		return Frame{}, domain.NewTruncatedError(bytes.Clone(pending), io.ErrUnexpectedEOF)
	}

	r.err = io.EOF
	if r.frames == 0 && len(pending) == 0 {
		return Frame{}, domain.NewTransportError("read stream", r.readErr)
	}
	return Frame{}, domain.NewTruncatedError(bytes.Clone(pending), r.readErr)
}

func (r *SSEReader) emit(frame Frame) Frame {
	r.frames++
	if frame.Kind == FrameTerminator {
		r.err = io.EOF
	}
	return frame
}

func (r *SSEReader) oversized(raw []byte) error {
	malformed := domain.NewMalformedError(bytes.Clone(raw), nil)
	malformed.Message = fmt.Sprintf("frame exceeds %d bytes", r.maxFrame)
	return malformed
}

// separatorTail is the longest prefix of a blank-line separator that can sit
// unmatched at the end of the buffer.
const separatorTail = 3

// keepTail drops buffered bytes except those that could start a boundary.
func (r *SSEReader) keepTail() {
	if len(r.buf) > separatorTail {
		r.buf = append(r.buf[:0], r.buf[len(r.buf)-separatorTail:]...)
	}
	r.scan = 0
}

// boundary finds the next separator in the buffer. A failed search records
// where the next one resumes, so each buffered byte is scanned a bounded
// number of times.
func (r *SSEReader) boundary() (int, int) {
	i, n := blankLine(r.buf, r.scan)
	if i < 0 {
		r.scan = max(0, len(r.buf)-separatorTail)
	} else {
		r.scan = 0
	}
	return i, n
}

// Close closes the body.
func (r *SSEReader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}

// blankLine returns the index and length of the first blank-line separator at
// or after from: two consecutive line endings, each of which may be CRLF, LF,
// or CR.
func blankLine(buf []byte, from int) (int, int) {
	start := -1
	for i := from; i < len(buf); i++ {
		c := buf[i]
		if c != '\n' && c != '\r' {
			start = -1
			continue
		}
		n := 1
		if c == '\r' && i+1 < len(buf) && buf[i+1] == '\n' {
			n = 2
		}
		if start >= 0 {
			return start, i + n - start
		}
		start = i
		i += n - 1
	}
	return -1, 0
}

// parseBlock turns one event block into a frame. It reports false for blocks
// without data, such as comment-only keepalives.
func parseBlock(block []byte) (Frame, bool) {
	block = bytes.ReplaceAll(block, []byte("\r\n"), []byte("\n"))
	block = bytes.ReplaceAll(block, []byte("\r"), []byte("\n"))

	var (
		frame Frame
		data  [][]byte
	)
	for _, line := range bytes.Split(block, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		field, value, found := bytes.Cut(line, []byte(":"))
		if found && len(field) == 0 {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))

		switch string(field) {
		case "event":
			frame.Label = string(value)
		case "data":
			data = append(data, value)
		case "id":
			frame.ID = string(value)
		}
	}
	if len(data) == 0 {
		return Frame{}, false
	}

	payload := bytes.Join(data, []byte("\n"))
	switch {
	case bytes.Equal(bytes.TrimSpace(payload), doneMarker):
		return Frame{Kind: FrameTerminator}, true
	case frame.Label != "":
		frame.Kind = FrameEventBlock
	default:
		frame.Kind = FrameTextDelta
	}
	frame.Payload = payload
	return frame, true
}
