package gstreamer

import (
	"fmt"

	"github.com/muxable/appframes/pkg/metrics"
	"github.com/rs/zerolog/log"
	"github.com/tinyzimmer/go-gst/gst"
)

// handleMessage is the bus watch. Errors and end-of-stream put the pipeline
// in READY and stop the main loop.
func (p *Pipeline) handleMessage(msg *gst.Message) bool {
	metrics.BusMessages.WithLabelValues(msg.TypeName()).Inc()

	switch msg.Type() {
	case gst.MessageEOS:
		log.Info().Str("Pipeline", p.name).Msg("end of stream")
		p.stop()
	case gst.MessageError:
		gerr := msg.ParseError()
		log.Error().Str("Pipeline", p.name).Str("Source", msg.Source()).Str("Debug", gerr.DebugString()).Msg(gerr.Error())
		p.mu.Lock()
		if p.err == nil {
			p.err = fmt.Errorf("%s: %s", msg.Source(), gerr.Error())
		}
		p.mu.Unlock()
		p.stop()
	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		log.Warn().Str("Pipeline", p.name).Str("Source", msg.Source()).Str("Debug", gerr.DebugString()).Msg(gerr.Error())
	case gst.MessageInfo:
		gerr := msg.ParseInfo()
		log.Info().Str("Pipeline", p.name).Str("Source", msg.Source()).Str("Debug", gerr.DebugString()).Msg(gerr.Error())
	case gst.MessageStateChanged:
		if msg.Source() == p.pipeline.GetName() {
			old, new := msg.ParseStateChanged()
			log.Debug().Str("Pipeline", p.name).Str("From", old.String()).Str("To", new.String()).Msg("state changed")
		}
	default:
		log.Trace().Str("Pipeline", p.name).Str("Type", msg.TypeName()).Msg("bus message")
	}
	return true
}

func (p *Pipeline) stop() {
	if err := p.pipeline.SetState(gst.StateReady); err != nil {
		log.Warn().Err(err).Str("Pipeline", p.name).Msg("failed to set pipeline to ready")
	}
	p.loop.Quit()
}
