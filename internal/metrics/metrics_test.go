package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EventPublished("messages", "INSERT")
	m.ChannelOpened()
	m.SendFailed("generic")
	m.NetworkState("connected", "connected", "disconnected")
}

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EventPublished("messages", "INSERT")
	m.EventPublished("messages", "INSERT")
	m.ChannelOpened()
	m.ChannelOpened()
	m.ChannelClosed()
	m.NetworkState("reconnecting", "connected", "disconnected", "reconnecting")

	if got := testutil.ToFloat64(m.events.WithLabelValues("messages", "INSERT")); got != 2 {
		t.Fatalf("expected 2 events, got %v", got)
	}
	if got := testutil.ToFloat64(m.channelsActive); got != 1 {
		t.Fatalf("expected 1 active channel, got %v", got)
	}
	if got := testutil.ToFloat64(m.networkState.WithLabelValues("reconnecting")); got != 1 {
		t.Fatalf("expected reconnecting gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.networkState.WithLabelValues("connected")); got != 0 {
		t.Fatalf("expected connected gauge 0, got %v", got)
	}
}
