// Package wire reads raw frames off long-lived streaming connections. Frames
// carry no business meaning; turning them into typed events is the stream
// decoder's job.
package wire

import (
	"context"
	"fmt"
)

// FrameKind classifies a frame.
type FrameKind int

const (
	// FrameTextDelta is an unlabeled chunk of an incremental text stream.
	FrameTextDelta FrameKind = iota + 1

	// FrameEventBlock is a labeled event of an event protocol.
	FrameEventBlock

	// FrameTerminator marks clean end of stream. It carries no payload and no
	// frame follows it.
	FrameTerminator
)

func (k FrameKind) String() string {
	switch k {
	case FrameTextDelta:
		return "text_delta"
	case FrameEventBlock:
		return "event_block"
	case FrameTerminator:
		return "terminator"
	}
	return fmt.Sprintf("FrameKind(%d)", int(k))
}

// Frame is the smallest unit read off a streaming connection.
type Frame struct {
	Kind FrameKind

	// Label is the event name, when the protocol carries one.
	Label string

	// ID is the SSE event id, when present.
	ID string

	// Payload is the raw frame body.
	Payload []byte
}

// Source produces frames from a single connection. Next blocks until a frame
// is assembled or the feed ends.
//
// Next returns io.EOF when the feed closed cleanly on a frame boundary without
// a terminator. Any other error is a *domain.ClientError; errors whose
// Terminal method reports false leave the source usable.
//
// Close releases the underlying connection and unblocks a pending Next. It is
// safe to call more than once and from another goroutine.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}
