package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters for patient conversation turns.
type ConversationMetrics struct {
	turnsTotal         *prometheus.CounterVec
	finalizationsTotal prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalchat",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total conversation turns by stage and outcome",
		}, []string{"stage", "outcome"}),
		finalizationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dentalchat",
			Subsystem: "conversation",
			Name:      "finalizations_total",
			Help:      "Total conversations finalized into leads",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.finalizationsTotal)
	return m
}

func (m *ConversationMetrics) ObserveTurn(stage, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *ConversationMetrics) ObserveFinalization() {
	if m == nil {
		return
	}
	m.finalizationsTotal.Inc()
}

// DeliveryMetrics exposes counters/histograms for lead webhook delivery.
type DeliveryMetrics struct {
	deliveriesTotal *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
}

func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalchat",
			Subsystem: "delivery",
			Name:      "webhook_total",
			Help:      "Total lead webhook deliveries by outcome",
		}, []string{"outcome"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentalchat",
			Subsystem: "delivery",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of lead webhook deliveries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveriesTotal, m.deliveryLatency)
	return m
}

func (m *DeliveryMetrics) ObserveDelivery(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(outcome).Inc()
	m.deliveryLatency.WithLabelValues(outcome).Observe(seconds)
}
