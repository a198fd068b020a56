// Package metrics exposes prometheus counters for the frame pipelines.
package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	FramesProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "appframes",
		Name:      "frames_produced_total",
		Help:      "Frames synthesized by the feeder.",
	})
	FramesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "appframes",
		Name:      "frames_written_total",
		Help:      "Frames written by the capture.",
	})
	BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "appframes",
		Name:      "bytes_written_total",
		Help:      "Raw frame bytes written by the capture.",
	})
	FeedTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appframes",
		Name:      "feed_transitions_total",
		Help:      "Feeder state transitions by target state.",
	}, []string{"state"})
	EndOfStream = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appframes",
		Name:      "end_of_stream_total",
		Help:      "End-of-stream signals raised by the application.",
	}, []string{"component"})
	BusMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appframes",
		Name:      "bus_messages_total",
		Help:      "Pipeline bus messages handled, by type.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(FramesProduced, FramesWritten, BytesWritten, FeedTransitions, EndOfStream, BusMessages)
}

// Serve exposes /metrics on addr until the listener fails.
func Serve(addr string) {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler: m,
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("failed to listen for metrics")
		return
	}
	log.Info().Str("addr", lis.Addr().String()).Msg("serving metrics")

	if err := srv.Serve(lis); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
