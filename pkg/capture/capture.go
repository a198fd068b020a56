// Package capture writes raw frames handed out by a pipeline to a file, up to
// a frame limit.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/muxable/appframes/pkg/frame"
	"github.com/muxable/appframes/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// DefaultLimit is the number of frames written when no limit is configured.
// It counts frames written: five frames, not the six a post-incremented
// "frame_num++ > 5" check lets through.
const DefaultLimit = 5

// ErrLimitReached is returned by Consume once the frame limit has been written.
var ErrLimitReached = errors.New("capture: frame limit reached")

// Capture consumes frames by writing them sequentially to w.
type Capture struct {
	mu sync.Mutex

	w      io.Writer
	format frame.Format
	limit  uint64
	onEnd  func()

	frames uint64
	bytes  uint64
	ended  bool
	done   chan struct{}
}

// NewCapture creates a capture writing at most limit frames of format to w.
// A limit of zero means no limit. onEnd, if not nil, runs exactly once, when
// the first frame beyond the limit arrives. It runs without the capture's lock
// held, so it may call back into the capture.
func NewCapture(w io.Writer, format frame.Format, limit int, onEnd func()) *Capture {
	c := &Capture{
		w:      w,
		format: format,
		onEnd:  onEnd,
		done:   make(chan struct{}),
	}
	if limit > 0 {
		c.limit = uint64(limit)
	}
	return c
}

// Consume writes one frame. After the limit it returns ErrLimitReached.
func (c *Capture) Consume(f *frame.Frame) error {
	c.mu.Lock()
	if c.limit > 0 && c.frames >= c.limit {
		ended := c.endLocked()
		c.mu.Unlock()
		if ended && c.onEnd != nil {
			c.onEnd()
		}
		return ErrLimitReached
	}
	defer c.mu.Unlock()

	if want := c.format.FrameSize(); f.Size() != want {
		log.Warn().Int("Size", f.Size()).Int("Expected", want).Uint64("Seq", f.Seq).Msg("unexpected frame size")
	}
	n, err := c.w.Write(f.Data)
	c.bytes += uint64(n)
	metrics.BytesWritten.Add(float64(n))
	if err != nil {
		return fmt.Errorf("failed to write frame %d: %w", f.Seq, err)
	}
	c.frames++
	metrics.FramesWritten.Inc()
	log.Debug().Uint64("Seq", f.Seq).Int("Size", n).Msg("frame written")
	return nil
}

// endLocked marks the capture ended and reports whether this call did it.
func (c *Capture) endLocked() bool {
	if c.ended {
		return false
	}
	c.ended = true
	close(c.done)
	metrics.EndOfStream.WithLabelValues("capture").Inc()
	log.Info().Uint64("Frames", c.frames).Uint64("Bytes", c.bytes).Msg("end of stream")
	return true
}

// Done is closed once the frame limit has been hit.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Frames returns the number of frames written.
func (c *Capture) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Bytes returns the number of bytes written.
func (c *Capture) Bytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
