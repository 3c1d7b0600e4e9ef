package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "mdrouter"
	metricsSubsystem = "session"
)

// metricsは、セッションのメトリクスです。
type metrics struct {
	items              *prometheus.GaugeVec
	failovers          prometheus.Counter
	channelTransitions *prometheus.CounterVec
	directoryDeltas    *prometheus.CounterVec
	loginTransitions   *prometheus.CounterVec
	unserviced         prometheus.Counter

	reg        prometheus.Registerer
	registered []prometheus.Collector
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "items",
			Help:      "Number of item streams by state.",
		}, []string{"state"}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "item_recoveries_total",
			Help:      "Number of item recoveries.",
		}),
		channelTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "channel_transitions_total",
			Help:      "Number of channel state transitions.",
		}, []string{"channel", "state"}),
		directoryDeltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "directory_deltas_total",
			Help:      "Number of consolidated directory deltas.",
		}, []string{"action"}),
		loginTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "login_transitions_total",
			Help:      "Number of per-channel login state transitions.",
		}, []string{"state"}),
		unserviced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "unserviced_statuses_total",
			Help:      "Number of statuses sent for unserviced items.",
		}),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			// 同一のレジストリに登録済みの場合、後から接続したセッションのメトリクスは公開しません。
			if err := reg.Register(c); err == nil {
				m.registered = append(m.registered, c)
			}
		}
		m.reg = reg
	}
	return m
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.items,
		m.failovers,
		m.channelTransitions,
		m.directoryDeltas,
		m.loginTransitions,
		m.unserviced,
	}
}

func (m *metrics) itemTransition(from, to itemStatus) {
	if from == to {
		return
	}
	m.items.WithLabelValues(from.String()).Dec()
	m.items.WithLabelValues(to.String()).Inc()
}

func (m *metrics) itemAdded(s itemStatus) {
	m.items.WithLabelValues(s.String()).Inc()
}

func (m *metrics) itemRemoved(s itemStatus) {
	m.items.WithLabelValues(s.String()).Dec()
}

func (m *metrics) unregister() {
	if m.reg == nil {
		return
	}
	for _, c := range m.registered {
		m.reg.Unregister(c)
	}
	m.registered = nil
}
