package gstreamer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/muxable/appframes/pkg/capture"
	"github.com/muxable/appframes/pkg/frame"
	"github.com/muxable/appframes/pkg/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Consumer receives frames pulled from an appsink. The frame data is only
// valid for the duration of the call.
type Consumer interface {
	Consume(f *frame.Frame) error
}

// CapturePipeline is videotestsrc ! videoconvert ! appsink.
type CapturePipeline struct {
	*Pipeline

	sink     *app.Sink
	format   frame.Format
	consumer Consumer

	mu  sync.Mutex
	seq uint64
}

// NewCapturePipeline builds a pipeline that renders the named videotestsrc
// pattern in the context's format and hands every frame to consumer. When
// consumer reports capture.ErrLimitReached the pipeline ends the stream.
func NewCapturePipeline(ctx pipeline.Context, pattern string, consumer Consumer) (*CapturePipeline, error) {
	if err := ctx.Format.Validate(); err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := PatternValue(pattern); err != nil {
		return nil, err
	}

	p, err := newPipeline("capture", ctx.Clock)
	if err != nil {
		return nil, err
	}

	elems, err := newElements("videotestsrc", "videoconvert")
	if err != nil {
		return nil, err
	}
	src, convert := elems[0], elems[1]
	src.SetArg("pattern", pattern)

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	caps := gst.NewCapsFromString(ctx.Format.Caps())
	sink.SetCaps(caps)

	if err := p.pipeline.AddMany(src, convert, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := src.LinkFiltered(convert, caps); err != nil {
		return nil, fmt.Errorf("failed to link videotestsrc: %w", err)
	}
	if err := convert.Link(sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link appsink: %w", err)
	}

	c := &CapturePipeline{
		Pipeline: p,
		sink:     sink,
		format:   ctx.Format,
		consumer: consumer,
	}
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: c.onNewSample})
	return c, nil
}

func (c *CapturePipeline) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		log.Warn().Msg("sample without buffer")
		return gst.FlowOK
	}

	c.mu.Lock()
	seq := c.seq
	c.seq++
	c.mu.Unlock()

	// buffers without timing fall back to the nominal frame clock.
	pts, duration := buffer.PresentationTimestamp(), buffer.Duration()
	if pts < 0 {
		pts = c.format.Timestamp(seq)
	}
	if duration < 0 {
		duration = c.format.FrameDuration()
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	f := &frame.Frame{
		Seq:      seq,
		PTS:      pts,
		Duration: duration,
		Format:   c.format,
		Data:     mapInfo.Bytes(),
	}
	if err := c.consumer.Consume(f); err != nil {
		if errors.Is(err, capture.ErrLimitReached) {
			c.PostEndOfStream(c.sink.Element)
			return gst.FlowEOS
		}
		log.Error().Err(err).Uint64("Seq", seq).Msg("failed to consume frame")
		return gst.FlowError
	}
	return gst.FlowOK
}
