// Package gstreamer builds and runs the GStreamer pipelines around the
// application's frame producers and consumers.
package gstreamer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"
)

// DrainTimeout bounds how long Run waits for end-of-stream to reach the
// sink after its context is cancelled.
const DrainTimeout = 5 * time.Second

var initOnce sync.Once

// Init initializes GStreamer. It is safe to call more than once.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
		log.Debug().Msg("gstreamer initialized")
	})
}

// Pipeline owns a gst pipeline and the main loop that services its bus.
type Pipeline struct {
	pipeline *gst.Pipeline
	loop     *glib.MainLoop
	clock    clock.Clock
	name     string

	mu     sync.Mutex
	err    error
	eosSet bool
}

func newPipeline(name string, clk clock.Clock) (*Pipeline, error) {
	Init()
	pipeline, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	p := &Pipeline{
		pipeline: pipeline,
		loop:     glib.NewMainLoop(glib.MainContextDefault(), false),
		clock:    clk,
		name:     name,
	}
	pipeline.GetPipelineBus().AddWatch(p.handleMessage)
	return p, nil
}

// Run sets the pipeline to PLAYING and blocks until an end-of-stream or error
// message stops it. Cancelling ctx sends end-of-stream so that muxers can
// finalize their output; if that does not arrive within DrainTimeout the loop
// is stopped anyway.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to playing: %w", err)
	}
	log.Info().Str("Pipeline", p.name).Msg("pipeline playing")

	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		log.Info().Str("Pipeline", p.name).Msg("interrupted, draining")
		p.pipeline.SendEvent(gst.NewEOSEvent())
		select {
		case <-done:
		case <-p.clock.After(DrainTimeout):
			log.Warn().Str("Pipeline", p.name).Msg("drain timed out")
			p.loop.Quit()
		}
	}()

	p.loop.Run()
	close(done)
	return p.Err()
}

// PostEndOfStream posts an end-of-stream message on the pipeline bus on behalf
// of src. Only the first call has an effect.
func (p *Pipeline) PostEndOfStream(src *gst.Element) {
	p.mu.Lock()
	if p.eosSet {
		p.mu.Unlock()
		return
	}
	p.eosSet = true
	p.mu.Unlock()

	if !p.pipeline.GetPipelineBus().Post(gst.NewEOSMessage(src)) {
		log.Warn().Str("Pipeline", p.name).Msg("failed to post end of stream")
	}
}

// Err returns the error reported on the bus, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close sets the pipeline to NULL.
func (p *Pipeline) Close() error {
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to null: %w", err)
	}
	return nil
}

// newElements creates elements from factory names, each named after its factory.
func newElements(factories ...string) ([]*gst.Element, error) {
	elems := make([]*gst.Element, len(factories))
	for i, factory := range factories {
		elem, err := gst.NewElement(factory)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", factory, err)
		}
		elems[i] = elem
	}
	return elems, nil
}
