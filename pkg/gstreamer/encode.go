package gstreamer

import (
	"fmt"

	"github.com/muxable/appframes/pkg/encoder"
	"github.com/muxable/appframes/pkg/frame"
	"github.com/muxable/appframes/pkg/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Producer is told when the appsrc wants more data and when its queue is full.
type Producer interface {
	NeedData() bool
	EnoughData() bool
}

// EncodeOptions configure an encode pipeline.
type EncodeOptions struct {
	Encoder *encoder.PipelineConfiguration
	// Bitrate in bits per second. Zero keeps the encoder default.
	Bitrate uint32
	Output  string
}

// EncodePipeline is appsrc ! <encoder chain> ! filesink.
type EncodePipeline struct {
	*Pipeline

	source *Source
}

// NewEncodePipeline builds a pipeline that encodes frames pushed into its
// Source and writes the container to opts.Output. The appsrc flow control
// notifications are forwarded to producer.
func NewEncodePipeline(ctx pipeline.Context, opts EncodeOptions, producer Producer) (*EncodePipeline, error) {
	if err := ctx.Format.Validate(); err != nil {
		return nil, err
	}
	if opts.Encoder == nil {
		return nil, fmt.Errorf("no encoder configuration")
	}

	p, err := newPipeline("encode", ctx.Clock)
	if err != nil {
		return nil, err
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(ctx.Format.Caps()))
	// enum properties are set by nick; go-glib has no GValue for gst.Format.
	src.SetArg("format", "time")

	chain := []*gst.Element{src.Element}
	for _, e := range opts.Encoder.Elements {
		elem, err := newChainElement(e)
		if err != nil {
			return nil, err
		}
		if e.Name == encoder.EncoderName && opts.Bitrate > 0 {
			prop, value := opts.Encoder.Bitrate(opts.Bitrate)
			if err := elem.SetProperty(prop, value); err != nil {
				return nil, fmt.Errorf("failed to set %s on %s: %w", prop, e.Factory, err)
			}
		}
		chain = append(chain, elem)
	}

	filesink, err := gst.NewElement("filesink")
	if err != nil {
		return nil, fmt.Errorf("failed to create filesink: %w", err)
	}
	if err := filesink.SetProperty("location", opts.Output); err != nil {
		return nil, fmt.Errorf("failed to set output location: %w", err)
	}
	chain = append(chain, filesink)

	if err := p.pipeline.AddMany(chain...); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(chain...); err != nil {
		return nil, fmt.Errorf("failed to link %s: %w", opts.Encoder, err)
	}

	src.SetCallbacks(&app.SourceCallbacks{
		NeedDataFunc: func(_ *app.Source, length uint) {
			producer.NeedData()
		},
		EnoughDataFunc: func(_ *app.Source) {
			producer.EnoughData()
		},
	})

	log.Debug().Str("Chain", opts.Encoder.String()).Str("Output", opts.Output).Msg("encode pipeline built")

	return &EncodePipeline{
		Pipeline: p,
		source:   &Source{src: src},
	}, nil
}

// Source returns the appsrc frames are pushed into.
func (e *EncodePipeline) Source() *Source {
	return e.source
}

func newChainElement(e encoder.Element) (*gst.Element, error) {
	var elem *gst.Element
	var err error
	if e.Name != "" {
		elem, err = gst.NewElementWithName(e.Factory, e.Name)
	} else {
		elem, err = gst.NewElement(e.Factory)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", e.Factory, err)
	}
	if e.Caps != "" {
		if err := elem.SetProperty("caps", gst.NewCapsFromString(e.Caps)); err != nil {
			return nil, fmt.Errorf("failed to set caps on %s: %w", e.Factory, err)
		}
	}
	for k, v := range e.Properties {
		if err := elem.SetProperty(k, v); err != nil {
			return nil, fmt.Errorf("failed to set %s on %s: %w", k, e.Factory, err)
		}
	}
	return elem, nil
}

// Source pushes frames into an appsrc.
type Source struct {
	src *app.Source
}

// PushFrame copies f into a buffer stamped with its presentation time and
// duration and pushes it downstream.
func (s *Source) PushFrame(f *frame.Frame) error {
	buf := gst.NewBufferFromBytes(f.Data)
	buf.SetPresentationTimestamp(f.PTS)
	buf.SetDuration(f.Duration)
	if ret := s.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("push buffer: %v", ret)
	}
	return nil
}

// EndOfStream tells the appsrc that no more buffers follow.
func (s *Source) EndOfStream() error {
	if ret := s.src.EndStream(); ret != gst.FlowOK {
		return fmt.Errorf("end stream: %v", ret)
	}
	return nil
}
