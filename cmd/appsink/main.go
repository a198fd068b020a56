package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/muxable/appframes/pkg/capture"
	"github.com/muxable/appframes/pkg/config"
	"github.com/muxable/appframes/pkg/gstreamer"
	"github.com/muxable/appframes/pkg/metrics"
	"github.com/muxable/appframes/pkg/pipeline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// appsink renders a videotestsrc pattern and writes the raw frames it pulls
// from an appsink to a file.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Str("run", uuid.NewString()).Logger()

	configPath := flag.String("config", "", "YAML configuration file")
	out := flag.String("out", "", "The raw frame file to write")
	limit := flag.Int("limit", 0, "The number of frames to write, 0 for no limit")
	pattern := flag.String("pattern", "", "The videotestsrc pattern to render, one of "+strings.Join(gstreamer.PatternNames(), ", "))
	metricsAddr := flag.String("metrics", "", "The address to serve prometheus metrics on")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Capture.Output = *out
		case "limit":
			cfg.Capture.Limit = *limit
		case "pattern":
			cfg.Capture.Pattern = *pattern
		case "metrics":
			cfg.Metrics = *metricsAddr
		case "debug":
			cfg.Debug = *debug
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Metrics != "" {
		go metrics.Serve(cfg.Metrics)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("capture failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	pctx := pipeline.NewContext(cfg.Format())

	f, err := os.Create(cfg.Capture.Output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	c := capture.NewCapture(f, pctx.Format, cfg.Capture.Limit, func() {
		log.Info().Int("Limit", cfg.Capture.Limit).Msg("frame limit reached")
	})

	p, err := gstreamer.NewCapturePipeline(pctx, cfg.Capture.Pattern, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close pipeline")
		}
	}()

	log.Info().Stringer("Format", pctx.Format).Str("Pattern", cfg.Capture.Pattern).Str("Output", cfg.Capture.Output).Msg("capturing")
	err = p.Run(ctx)

	limited := false
	select {
	case <-c.Done():
		limited = true
	default:
	}
	log.Info().Uint64("Frames", c.Frames()).Uint64("Bytes", c.Bytes()).Bool("LimitReached", limited).Msg("capture finished")
	return err
}
