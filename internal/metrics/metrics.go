package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters for availability queries, bookings and notifications.
type Metrics struct {
	slotQueries   *prometheus.CounterVec
	slotsOffered  prometheus.Histogram
	bookings      *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "availability",
			Name:      "queries_total",
			Help:      "Slot queries by result reason",
		}, []string{"reason"}),
		slotsOffered: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "barbershop",
			Subsystem: "availability",
			Name:      "slots_offered",
			Help:      "Number of start times offered per query",
			Buckets:   prometheus.LinearBuckets(0, 4, 8),
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barbershop",
			Subsystem: "notify",
			Name:      "webhook_total",
			Help:      "Booking webhook deliveries by status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotQueries, m.slotsOffered, m.bookings, m.notifications)
	return m
}

func (m *Metrics) ObserveSlots(reason string, offered int) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(reason).Inc()
	m.slotsOffered.Observe(float64(offered))
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveNotification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}
