package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRegistered(t *testing.T) {
	FeedTransitions.WithLabelValues("feeding").Inc()
	BusMessages.WithLabelValues("eos").Inc()

	if n := testutil.CollectAndCount(FeedTransitions); n < 1 {
		t.Errorf("expected at least one feed transition series, got %d", n)
	}
	if got := testutil.ToFloat64(BusMessages.WithLabelValues("eos")); got < 1 {
		t.Errorf("expected bus message counter to be incremented, got %v", got)
	}
}
