package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrBridgeClosed is returned when publishing to a closed bridge
var ErrBridgeClosed = errors.New("bridge is closed")

// Line is one log line crossing the bridge. Err is set on the final line
// when the source failed mid-stream.
type Line struct {
	Text string
	Err  error
}

// Bridge carries log lines from a producer goroutine to a single consumer
// over a bounded channel. When the buffer is full the producer blocks, so a
// slow consumer applies backpressure instead of growing memory; when the
// consumer goes away the producer's next Publish fails and it stops reading.
type Bridge struct {
	lines chan Line
	done  chan struct{}
	mu    sync.Mutex
}

// NewBridge creates a bridge with the specified buffer size
func NewBridge(bufferSize int) *Bridge {
	return &Bridge{
		lines: make(chan Line, bufferSize),
		done:  make(chan struct{}),
	}
}

// Publish delivers a line to the consumer, blocking while the buffer is
// full. It fails when the bridge is closed or the context is cancelled.
func (b *Bridge) Publish(ctx context.Context, line Line) error {
	// done is checked first so a closed bridge wins over a free buffer slot
	select {
	case <-b.done:
		return ErrBridgeClosed
	default:
	}

	select {
	case b.lines <- line:
		return nil
	case <-b.done:
		return ErrBridgeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lines returns the channel the consumer reads from. It is closed when the
// producer finishes or the bridge is closed.
func (b *Bridge) Lines() <-chan Line {
	return b.lines
}

// Close tears the bridge down from the consumer side. Safe to call more
// than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		return // Already closed
	default:
		close(b.done)
	}
}

// finish closes the line channel from the producer side once no more
// publishes will happen
func (b *Bridge) finish() {
	close(b.lines)
}

// LineReader yields log lines one at a time. io.EOF signals a clean end of
// the stream.
type LineReader interface {
	ReadLine() (string, error)
}

// Pump reads lines from the source and publishes them to the bridge until
// the source ends, the context is cancelled, or the consumer closes the
// bridge. The pump never reads past the first failed publish.
func Pump(ctx context.Context, source LineReader, bridge *Bridge) {
	defer bridge.finish()

	for {
		text, err := source.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Best-effort: the consumer may already be gone
				_ = bridge.Publish(ctx, Line{Err: err})
			}
			return
		}
		if err := bridge.Publish(ctx, Line{Text: text}); err != nil {
			return
		}
	}
}
