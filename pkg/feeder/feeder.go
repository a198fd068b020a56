// Package feeder produces synthetic frames for a consumer that controls the
// flow with need-data and enough-data notifications, up to a frame limit.
package feeder

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/ratelimit"
	"github.com/muxable/appframes/pkg/frame"
	"github.com/muxable/appframes/pkg/metrics"
	"github.com/muxable/appframes/pkg/pipeline"
	"github.com/rs/zerolog/log"
)

// DefaultLimit is the number of frames produced when no limit is configured.
const DefaultLimit = 300

// Sink receives the frames of a Feeder.
type Sink interface {
	// PushFrame hands one frame downstream.
	PushFrame(f *frame.Frame) error
	// EndOfStream tells downstream that no more frames follow.
	EndOfStream() error
}

// Options configure a Feeder.
type Options struct {
	// Limit is the number of frames to produce. Zero means no limit.
	Limit int
	// Realtime paces production to the frame rate of the format.
	Realtime bool
}

// Feeder is a bounded frame producer with a backpressure toggle.
type Feeder struct {
	mu sync.Mutex

	gen    *frame.Generator
	limit  uint64
	bucket *ratelimit.Bucket

	state    State
	reason   Reason
	ticks    uint64
	produced uint64
	eosSent  bool
	err      error

	wake chan struct{}
}

// NewFeeder creates an idle feeder drawing frames from gen.
func NewFeeder(ctx pipeline.Context, gen *frame.Generator, opts Options) *Feeder {
	f := &Feeder{
		gen:  gen,
		wake: make(chan struct{}, 1),
	}
	if opts.Limit > 0 {
		f.limit = uint64(opts.Limit)
	}
	if opts.Realtime {
		fps := gen.Format().FPS
		f.bucket = ratelimit.NewBucketWithRateAndClock(float64(fps), 1, ctx.Clock)
	}
	return f
}

// signal wakes Run without blocking.
func (f *Feeder) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Feeder) setStateLocked(s State) {
	f.state = s
	metrics.FeedTransitions.WithLabelValues(s.String()).Inc()
}

// NeedData moves an idle feeder to feeding. It reports whether the state changed.
func (f *Feeder) NeedData() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle {
		return false
	}
	f.setStateLocked(StateFeeding)
	f.signal()
	log.Info().Uint64("Produced", f.produced).Msg("start feeding")
	return true
}

// EnoughData moves a feeding feeder to idle. It reports whether the state changed.
func (f *Feeder) EnoughData() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateFeeding {
		return false
	}
	f.setStateLocked(StateIdle)
	log.Info().Uint64("Produced", f.produced).Msg("stop feeding")
	return true
}

// Stop ends production without signalling end-of-stream. It reports whether the state changed.
func (f *Feeder) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.stopLocked(ReasonExternal, nil)
}

func (f *Feeder) stopLocked(reason Reason, err error) bool {
	if f.state == StateStopped {
		return false
	}
	f.setStateLocked(StateStopped)
	f.reason = reason
	f.err = err
	f.signal()
	log.Debug().Stringer("Reason", reason).Uint64("Produced", f.produced).Msg("feeder stopped")
	return true
}

// Next returns the next frame, or false once the feeder has stopped. Each call
// advances the tick counter; the call that takes it past the limit stops the
// feeder.
func (f *Feeder) Next() (*frame.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateStopped {
		return nil, false
	}
	return f.nextLocked()
}

// nextFeeding is Next for the run loop: it hands out nothing unless the
// feeder is feeding, so enough-data takes effect before the next frame.
func (f *Feeder) nextFeeding() (*frame.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateFeeding {
		return nil, false
	}
	return f.nextLocked()
}

// limitReached reports whether the next tick would pass the limit.
func (f *Feeder) limitReached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit > 0 && f.ticks >= f.limit
}

func (f *Feeder) nextLocked() (*frame.Frame, bool) {
	f.ticks++
	if f.limit > 0 && f.ticks > f.limit {
		f.stopLocked(ReasonLimit, nil)
		return nil, false
	}

	fr := f.gen.Frame(f.produced)
	f.produced++
	metrics.FramesProduced.Inc()
	return fr, true
}

// Run pushes frames into sink while feeding and waits while idle. It returns
// once the feeder stops: nil after the limit or an external Stop, the push
// error if sink rejected a frame, or the context error on cancellation.
// End-of-stream is sent at most once, after the limit or on cancellation.
func (f *Feeder) Run(ctx context.Context, sink Sink) error {
	for {
		switch f.State() {
		case StateStopped:
			return f.finish(sink)
		case StateIdle:
			select {
			case <-ctx.Done():
				f.cancel(ctx.Err())
			case <-f.wake:
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			f.cancel(err)
			continue
		}
		if f.bucket != nil && !f.limitReached() {
			f.bucket.Wait(1)
		}

		fr, ok := f.nextFeeding()
		if !ok {
			continue
		}
		if err := sink.PushFrame(fr); err != nil {
			log.Error().Err(err).Uint64("Seq", fr.Seq).Msg("failed to push frame")
			f.mu.Lock()
			f.stopLocked(ReasonPushFailed, fmt.Errorf("push frame %d: %w", fr.Seq, err))
			f.mu.Unlock()
		}
	}
}

func (f *Feeder) cancel(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopLocked(ReasonCancelled, err)
}

func (f *Feeder) finish(sink Sink) error {
	f.mu.Lock()
	reason, err := f.reason, f.err
	send := reason.endsStream() && !f.eosSent
	if send {
		f.eosSent = true
	}
	produced := f.produced
	f.mu.Unlock()

	if send {
		metrics.EndOfStream.WithLabelValues("feeder").Inc()
		log.Info().Uint64("Produced", produced).Stringer("Reason", reason).Msg("end of stream")
		if eerr := sink.EndOfStream(); eerr != nil {
			return fmt.Errorf("failed to signal end of stream: %w", eerr)
		}
	}
	return err
}

// State returns the current state.
func (f *Feeder) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Reason returns why the feeder stopped, or ReasonNone while it runs.
func (f *Feeder) Reason() Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Ticks returns the number of Next calls counted against the limit.
func (f *Feeder) Ticks() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

// Produced returns the number of frames handed out.
func (f *Feeder) Produced() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.produced
}
