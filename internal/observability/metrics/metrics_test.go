package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	m.ObserveTurn("GREETING", "ok")
	m.ObserveTurn("BOOKING_APPOINTMENT", "fallback")
	m.ObserveFinalization()
}

func TestConversationMetricsNilSafe(t *testing.T) {
	var m *ConversationMetrics
	m.ObserveTurn("GREETING", "ok")
	m.ObserveFinalization()
}

func TestDeliveryMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeliveryMetrics(reg)
	m.ObserveDelivery("success", 0.25)
	m.ObserveDelivery("failure", 1.2)
}

func TestDeliveryMetricsNilSafe(t *testing.T) {
	var m *DeliveryMetrics
	m.ObserveDelivery("skipped", 0)
}
