// Package metrics holds the Prometheus collectors of the sync engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	events         *prometheus.CounterVec
	channelsActive prometheus.Gauge
	channelStatus  *prometheus.CounterVec
	sendFailures   *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	networkState   *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medlink",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Change events published to the realtime broker.",
		}, []string{"table", "type"}),
		channelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medlink",
			Subsystem: "realtime",
			Name:      "channels_active",
			Help:      "Push channels currently subscribed.",
		}),
		channelStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medlink",
			Subsystem: "realtime",
			Name:      "channel_status_total",
			Help:      "Channel status transitions.",
		}, []string{"status"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medlink",
			Subsystem: "chat",
			Name:      "send_failures_total",
			Help:      "Rolled back optimistic message sends by failure kind.",
		}, []string{"kind"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medlink",
			Subsystem: "sync",
			Name:      "sessions_active",
			Help:      "Signed-in sync sessions.",
		}),
		networkState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "medlink",
			Subsystem: "network",
			Name:      "state",
			Help:      "1 for the current push transport state, 0 otherwise.",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.events,
			m.channelsActive,
			m.channelStatus,
			m.sendFailures,
			m.sessionsActive,
			m.networkState,
		)
	}
	return m
}

func (m *Metrics) EventPublished(table, eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(table, eventType).Inc()
}

func (m *Metrics) ChannelStatus(status string) {
	if m == nil {
		return
	}
	m.channelStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.channelsActive.Inc()
}

func (m *Metrics) ChannelClosed() {
	if m == nil {
		return
	}
	m.channelsActive.Dec()
}

func (m *Metrics) SendFailed(kind string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// NetworkState flips the state gauge so exactly one label reads 1.
func (m *Metrics) NetworkState(current string, all ...string) {
	if m == nil {
		return
	}
	for _, state := range all {
		value := 0.0
		if state == current {
			value = 1
		}
		m.networkState.WithLabelValues(state).Set(value)
	}
}
