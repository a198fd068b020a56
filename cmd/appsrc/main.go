package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/muxable/appframes/pkg/config"
	"github.com/muxable/appframes/pkg/encoder"
	"github.com/muxable/appframes/pkg/feeder"
	"github.com/muxable/appframes/pkg/frame"
	"github.com/muxable/appframes/pkg/gstreamer"
	"github.com/muxable/appframes/pkg/metrics"
	"github.com/muxable/appframes/pkg/pipeline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ feeder.Sink = (*gstreamer.Source)(nil)

// appsrc synthesizes frames, pushes them into an appsrc and encodes them to
// a container file.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Str("run", uuid.NewString()).Logger()

	configPath := flag.String("config", "", "YAML configuration file")
	out := flag.String("out", "", "The container file to write")
	limit := flag.Int("limit", 0, "The number of frames to encode, 0 for no limit")
	codec := flag.String("codec", "", "The codec to encode with, e.g. h264, h265, vp8, vp9")
	bitrate := flag.Uint("bitrate", 0, "The target bitrate in bits per second")
	realtime := flag.Bool("realtime", false, "Pace frame production to the frame rate")
	metricsAddr := flag.String("metrics", "", "The address to serve prometheus metrics on")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return
	}
	outSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Encode.Output = *out
			outSet = true
		case "limit":
			cfg.Encode.Limit = *limit
		case "codec":
			cfg.Encode.Codec = *codec
		case "bitrate":
			cfg.Encode.Bitrate = uint32(*bitrate)
		case "realtime":
			cfg.Encode.Realtime = *realtime
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

	mimeType, err := encoder.MimeTypeFromName(cfg.Encode.Codec)
	if err != nil {
		log.Error().Err(err).Msg("invalid codec")
		return
	}
	encoderConfig, err := encoder.NewPipelineConfiguration(mimeType, runtime.GOARCH)
	if err != nil {
		log.Error().Err(err).Msg("failed to configure encoder")
		return
	}
	// the default output name follows the container of the chosen codec.
	if !outSet && cfg.Encode.Output == config.Default().Encode.Output {
		cfg.Encode.Output = strings.TrimSuffix(cfg.Encode.Output, filepath.Ext(cfg.Encode.Output)) + encoderConfig.Extension
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, encoderConfig); err != nil {
		log.Error().Err(err).Msg("encode failed")
	}
}

func run(ctx context.Context, cfg *config.Config, encoderConfig *encoder.PipelineConfiguration) error {
	pctx := pipeline.NewContext(cfg.Format())

	gen, err := frame.NewGenerator(pctx.Format, frame.Pattern(cfg.Encode.Pattern))
	if err != nil {
		return err
	}
	f := feeder.NewFeeder(pctx, gen, feeder.Options{
		Limit:    cfg.Encode.Limit,
		Realtime: cfg.Encode.Realtime,
	})

	p, err := gstreamer.NewEncodePipeline(pctx, gstreamer.EncodeOptions{
		Encoder: encoderConfig,
		Bitrate: cfg.Encode.Bitrate,
		Output:  cfg.Encode.Output,
	}, f)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close pipeline")
		}
	}()

	feedErr := make(chan error, 1)
	go func() {
		feedErr <- f.Run(ctx, p.Source())
	}()

	log.Info().Stringer("Format", pctx.Format).Str("Codec", encoderConfig.MimeType).Str("Output", cfg.Encode.Output).Msg("encoding")
	err = p.Run(ctx)

	// releases the feeder if the pipeline stopped on its own.
	f.Stop()
	ferr := <-feedErr
	log.Info().Uint64("Frames", f.Produced()).Stringer("Reason", f.Reason()).Msg("encode finished")

	if err != nil {
		return err
	}
	if ferr != nil && !errors.Is(ferr, context.Canceled) {
		return ferr
	}
	return nil
}
