package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. All methods are safe on
// a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	commandsSent   *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	channelsOpen   *prometheus.GaugeVec
	pageFetches    *prometheus.CounterVec
	duplicates     prometheus.Counter
	unread         *prometheus.GaugeVec
}

// New registers the collectors on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound push-channel frames by channel kind and event type",
		}, []string{"channel", "type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped as unknown or undecodable",
		}, []string{"channel", "reason"}),
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Outbound push-channel commands by type",
		}, []string{"type"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Push-channel reconnect attempts",
		}, []string{"channel"}),
		channelsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_open",
			Help:      "Push channels currently open",
		}, []string{"channel"}),
		pageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetches_total",
			Help:      "Historical page fetches by result",
		}, []string{"result"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_messages_total",
			Help:      "Messages skipped because their id was already in the timeline",
		}),
		unread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_messages",
			Help:      "Unread message counters by conversation kind",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.framesReceived,
		m.framesDropped,
		m.commandsSent,
		m.reconnects,
		m.channelsOpen,
		m.pageFetches,
		m.duplicates,
		m.unread,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameReceived(channel, eventType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(channel, eventType).Inc()
}

func (m *Metrics) FrameDropped(channel, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(channel, reason).Inc()
}

func (m *Metrics) CommandSent(commandType string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(commandType).Inc()
}

func (m *Metrics) Reconnect(channel string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(channel).Inc()
}

// ChannelOpened and ChannelClosed must be called in pairs.
func (m *Metrics) ChannelOpened(channel string) {
	if m == nil {
		return
	}
	m.channelsOpen.WithLabelValues(channel).Inc()
}

func (m *Metrics) ChannelClosed(channel string) {
	if m == nil {
		return
	}
	m.channelsOpen.WithLabelValues(channel).Dec()
}

func (m *Metrics) PageFetched(result string) {
	if m == nil {
		return
	}
	m.pageFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) DuplicatesSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicates.Add(float64(n))
}

func (m *Metrics) SetUnread(kind string, n int) {
	if m == nil {
		return
	}
	m.unread.WithLabelValues(kind).Set(float64(n))
}
