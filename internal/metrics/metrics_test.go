package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSlots("closed", 0)
	m.ObserveSlots("available", 12)
	m.ObserveSlots("available", 3)
	m.ObserveBooking("created")
	m.ObserveBooking("slot_taken")
	m.ObserveNotification("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotQueries.WithLabelValues("available")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotQueries.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues("slot_taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("failed")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSlots("closed", 0)
	m.ObserveBooking("created")
	m.ObserveNotification("sent")
}
