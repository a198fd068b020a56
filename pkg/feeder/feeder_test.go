package feeder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/muxable/appframes/pkg/frame"
	"github.com/muxable/appframes/pkg/metrics"
	"github.com/muxable/appframes/pkg/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
)

var testFormat = frame.Format{PixelFormat: frame.I420, Width: 16, Height: 16, FPS: 30}

type recordingSink struct {
	sync.Mutex
	frames []*frame.Frame
	eos    int
	onPush func(n int) error
}

func (s *recordingSink) PushFrame(f *frame.Frame) error {
	s.Lock()
	s.frames = append(s.frames, f)
	n := len(s.frames)
	s.Unlock()
	if s.onPush != nil {
		return s.onPush(n)
	}
	return nil
}

func (s *recordingSink) EndOfStream() error {
	s.Lock()
	s.eos++
	s.Unlock()
	return nil
}

func (s *recordingSink) counts() (int, int) {
	s.Lock()
	defer s.Unlock()
	return len(s.frames), s.eos
}

func newTestFeeder(t *testing.T, opts Options) *Feeder {
	gen, err := frame.NewGenerator(testFormat, frame.PatternGray)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	return NewFeeder(pipeline.Context{Format: testFormat, Clock: clock.New()}, gen, opts)
}

func TestFeeder_ToggleIgnoresRedundantSignals(t *testing.T) {
	f := newTestFeeder(t, Options{Limit: 10})

	if f.State() != StateIdle {
		t.Fatalf("expected idle, got %v", f.State())
	}
	if f.EnoughData() {
		t.Errorf("enough-data while idle should be a no-op")
	}
	if !f.NeedData() {
		t.Errorf("need-data while idle should start feeding")
	}
	if f.NeedData() {
		t.Errorf("need-data while feeding should be a no-op")
	}
	if f.State() != StateFeeding {
		t.Errorf("expected feeding, got %v", f.State())
	}
	if !f.EnoughData() {
		t.Errorf("enough-data while feeding should pause")
	}
	if f.EnoughData() {
		t.Errorf("enough-data while idle should be a no-op")
	}
	if !f.Stop() {
		t.Errorf("stop should stop an idle feeder")
	}
	if f.NeedData() || f.EnoughData() || f.Stop() {
		t.Errorf("signals after stop should be no-ops")
	}
	if f.State() != StateStopped || f.Reason() != ReasonExternal {
		t.Errorf("expected stopped by external, got %v by %v", f.State(), f.Reason())
	}
}

func TestFeeder_NextStopsAfterLimit(t *testing.T) {
	f := newTestFeeder(t, Options{Limit: 3})

	for i := 0; i < 3; i++ {
		fr, ok := f.Next()
		if !ok {
			t.Fatalf("expected frame %d", i)
		}
		if fr.Seq != uint64(i) {
			t.Errorf("expected seq %d, got %d", i, fr.Seq)
		}
		if fr.PTS != testFormat.Timestamp(uint64(i)) {
			t.Errorf("expected pts %v, got %v", testFormat.Timestamp(uint64(i)), fr.PTS)
		}
	}
	for i := 0; i < 3; i++ {
		if _, ok := f.Next(); ok {
			t.Fatalf("expected no frame after the limit")
		}
	}
	if f.State() != StateStopped || f.Reason() != ReasonLimit {
		t.Errorf("expected stopped by limit, got %v by %v", f.State(), f.Reason())
	}
	if f.Ticks() != 4 {
		t.Errorf("expected 4 ticks, got %d", f.Ticks())
	}
	if f.Produced() != 3 {
		t.Errorf("expected 3 frames, got %d", f.Produced())
	}
}

func TestFeeder_RunSignalsEndOfStreamOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	before := testutil.ToFloat64(metrics.EndOfStream.WithLabelValues("feeder"))

	f := newTestFeeder(t, Options{Limit: 10})
	sink := &recordingSink{}

	f.NeedData()
	if err := f.Run(context.Background(), sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Run(context.Background(), sink); err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}

	frames, eos := sink.counts()
	if frames != 10 {
		t.Errorf("expected 10 frames, got %d", frames)
	}
	if eos != 1 {
		t.Errorf("expected one end-of-stream, got %d", eos)
	}
	for i, fr := range sink.frames {
		if fr.Seq != uint64(i) {
			t.Errorf("frame %d has seq %d", i, fr.Seq)
		}
	}
	if got := testutil.ToFloat64(metrics.EndOfStream.WithLabelValues("feeder")) - before; got != 1 {
		t.Errorf("expected end-of-stream metric to increase by 1, got %v", got)
	}
}

func TestFeeder_RunWaitsWhileIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newTestFeeder(t, Options{Limit: 5})
	paused := make(chan struct{})
	sink := &recordingSink{
		onPush: func(n int) error {
			if n == 2 {
				f.EnoughData()
				close(paused)
			}
			return nil
		},
	}

	done := make(chan error, 1)
	f.NeedData()
	go func() { done <- f.Run(context.Background(), sink) }()

	<-paused
	time.Sleep(20 * time.Millisecond)
	if frames, _ := sink.counts(); frames != 2 {
		t.Fatalf("expected production to pause at 2 frames, got %d", frames)
	}

	f.NeedData()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frames, eos := sink.counts()
	if frames != 5 || eos != 1 {
		t.Errorf("expected 5 frames and one end-of-stream, got %d and %d", frames, eos)
	}
}

func TestFeeder_RunStopsOnPushError(t *testing.T) {
	defer goleak.VerifyNone(t)

	errFlow := errors.New("flow flushing")
	f := newTestFeeder(t, Options{Limit: 10})
	sink := &recordingSink{
		onPush: func(n int) error {
			if n == 3 {
				return errFlow
			}
			return nil
		},
	}

	f.NeedData()
	err := f.Run(context.Background(), sink)
	if !errors.Is(err, errFlow) {
		t.Fatalf("expected push error, got %v", err)
	}
	frames, eos := sink.counts()
	if frames != 3 || eos != 0 {
		t.Errorf("expected 3 frames and no end-of-stream, got %d and %d", frames, eos)
	}
	if f.Reason() != ReasonPushFailed {
		t.Errorf("expected push failure, got %v", f.Reason())
	}
}

func TestFeeder_RunCancelledWhileIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newTestFeeder(t, Options{})
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, sink) }()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if _, eos := sink.counts(); eos != 1 {
		t.Errorf("expected one end-of-stream, got %d", eos)
	}
	if f.Reason() != ReasonCancelled {
		t.Errorf("expected cancelled, got %v", f.Reason())
	}
}

func TestFeeder_RunCancelledWhileFeeding(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newTestFeeder(t, Options{})
	sink := &recordingSink{
		onPush: func(n int) error {
			if n == 50 {
				cancel()
			}
			return nil
		},
	}

	f.NeedData()
	if err := f.Run(ctx, sink); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	frames, eos := sink.counts()
	if frames != 50 || eos != 1 {
		t.Errorf("expected 50 frames and one end-of-stream, got %d and %d", frames, eos)
	}
}

func TestFeeder_StopReleasesIdleRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newTestFeeder(t, Options{Limit: 10})
	sink := &recordingSink{}

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background(), sink) }()

	f.Stop()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frames, eos := sink.counts(); frames != 0 || eos != 0 {
		t.Errorf("expected nothing pushed, got %d frames and %d end-of-stream", frames, eos)
	}
}

func TestFeeder_PauseTakesEffectBeforeNextFrame(t *testing.T) {
	f := newTestFeeder(t, Options{Limit: 10})

	if _, ok := f.nextFeeding(); ok {
		t.Fatalf("idle feeder handed out a frame")
	}
	f.NeedData()
	if _, ok := f.nextFeeding(); !ok {
		t.Fatalf("feeding feeder handed out nothing")
	}
	f.EnoughData()
	if _, ok := f.nextFeeding(); ok {
		t.Fatalf("paused feeder handed out a frame")
	}
	if f.Ticks() != 1 || f.Produced() != 1 {
		t.Errorf("expected 1 tick and 1 frame, got %d and %d", f.Ticks(), f.Produced())
	}
	if f.State() != StateIdle {
		t.Errorf("expected idle, got %v", f.State())
	}
}

func TestFeeder_RealtimePacing(t *testing.T) {
	defer goleak.VerifyNone(t)

	format := frame.Format{PixelFormat: frame.I420, Width: 16, Height: 16, FPS: 10}
	gen, err := frame.NewGenerator(format, frame.PatternGray)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	mock := clock.NewMock()
	f := NewFeeder(pipeline.Context{Format: format, Clock: mock}, gen, Options{Limit: 5, Realtime: true})
	sink := &recordingSink{}

	done := make(chan error, 1)
	f.NeedData()
	go func() { done <- f.Run(context.Background(), sink) }()

	waitFor := func(n int) bool {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if frames, _ := sink.counts(); frames >= n {
				return true
			}
			time.Sleep(time.Millisecond)
		}
		return false
	}

	// the bucket starts with one token.
	if !waitFor(1) {
		t.Fatalf("first frame was not pushed")
	}
	time.Sleep(20 * time.Millisecond)
	if frames, _ := sink.counts(); frames != 1 {
		t.Fatalf("expected production to wait for the clock after 1 frame, got %d", frames)
	}

	advances := 0
	for frames, _ := sink.counts(); frames < 5; frames, _ = sink.counts() {
		if advances == 100 {
			t.Fatalf("production stalled at %d frames", frames)
		}
		mock.Add(format.FrameDuration())
		advances++
		waitFor(frames + 1)
		if frames, _ := sink.counts(); frames > 1+advances {
			t.Fatalf("%d frames after %d frame intervals", frames, advances)
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frames, eos := sink.counts(); frames != 5 || eos != 1 {
		t.Errorf("expected 5 frames and one end-of-stream, got %d and %d", frames, eos)
	}
}
