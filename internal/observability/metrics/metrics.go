package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "patient_portal"

// FlowMetrics exposes counters/histograms for the booking flow.
type FlowMetrics struct {
	transitions    *prometheus.CounterVec
	bookingLatency *prometheus.HistogramVec
	conflicts      prometheus.Counter
	checkouts      *prometheus.CounterVec
}

func NewFlowMetrics(reg prometheus.Registerer) *FlowMetrics {
	m := &FlowMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "transitions_total",
			Help:      "Booking flow operations by outcome",
		}, []string{"operation", "result"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "booking_request_seconds",
			Help:      "Latency of the appointment booking request to the hospital API",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "slot_conflicts_total",
			Help:      "Booking attempts rejected because the slot was taken",
		}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "checkouts_total",
			Help:      "Checkout sessions by provider and status",
		}, []string{"provider", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.bookingLatency, m.conflicts, m.checkouts)
	return m
}

func (m *FlowMetrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transitions.WithLabelValues(operation, result).Inc()
}

func (m *FlowMetrics) ObserveBooking(result string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingLatency.WithLabelValues(result).Observe(seconds)
}

func (m *FlowMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *FlowMetrics) ObserveCheckout(provider, status string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(provider, status).Inc()
}

// CallMetrics tracks teleconsultation invitations.
type CallMetrics struct {
	invitations *prometheus.CounterVec
	pending     prometheus.Gauge
	connections prometheus.Gauge
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "invitations_total",
			Help:      "Call invitations by final outcome",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "pending_invitations",
			Help:      "Invitations waiting for an answer",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "websocket_connections",
			Help:      "Open signaling websocket connections",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.invitations, m.pending, m.connections)
	return m
}

func (m *CallMetrics) InvitationOpened() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

// InvitationClosed records the outcome of an invitation that left pending.
func (m *CallMetrics) InvitationClosed(outcome string) {
	if m == nil {
		return
	}
	m.pending.Dec()
	m.invitations.WithLabelValues(outcome).Inc()
}

func (m *CallMetrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *CallMetrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
