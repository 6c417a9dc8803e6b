package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "talkrelay"

// Label values for the dropped-delivery counter.
const (
	dropMailboxFull = "mailbox_full"
	dropClosed      = "closed"
)

// metrics holds the Prometheus collectors for one hub.
type metrics struct {
	activeSessions    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	sessionsRejected  prometheus.Counter
	messagesRelayed   *prometheus.CounterVec
	deliveriesDropped *prometheus.CounterVec
	protocolErrors    *prometheus.CounterVec
	messagesThrottled prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently in the registry",
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions registered",
		}),

		sessionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_rejected_total",
			Help:      "Connections turned away because the registry was full",
		}),

		messagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_relayed_total",
			Help:      "Messages accepted from clients for relay, by kind",
		}, []string{"kind"}),

		deliveriesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_dropped_total",
			Help:      "Messages that were not queued for a recipient, by reason",
		}, []string{"reason"}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Ignored client commands, by kind",
		}, []string{"kind"}),

		messagesThrottled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_throttled_total",
			Help:      "Polls delayed because a session used up its rate limit",
		}),
	}
}

func (m *metrics) dropped(err error) {
	switch err {
	case ErrMailboxFull:
		m.deliveriesDropped.WithLabelValues(dropMailboxFull).Inc()
	case ErrSessionClosed:
		m.deliveriesDropped.WithLabelValues(dropClosed).Inc()
	}
}
