package voicemux

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes bridge counters. A nil *Metrics is valid and records
// nothing, so instrumentation stays optional.
type Metrics struct {
	connects         prometheus.Counter
	reconnects       prometheus.Counter
	framesReceived   *prometheus.CounterVec
	framesSent       *prometheus.CounterVec
	decryptFailures  prometheus.Counter
	eventsDispatched *prometheus.CounterVec
	connectionState  prometheus.Gauge
}

// NewMetrics builds and registers the bridge metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicemux",
			Subsystem: "bridge",
			Name:      "connect_attempts_total",
			Help:      "Transport dial attempts.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicemux",
			Subsystem: "bridge",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnects scheduled after a transport drop.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicemux",
			Subsystem: "bridge",
			Name:      "frames_received_total",
			Help:      "Inbound frames by event name.",
		}, []string{"event"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicemux",
			Subsystem: "bridge",
			Name:      "frames_sent_total",
			Help:      "Outbound frames by event name.",
		}, []string{"event"}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voicemux",
			Subsystem: "bridge",
			Name:      "decrypt_failures_total",
			Help:      "Payloads that failed decryption, including key mismatches.",
		}),
		eventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicemux",
			Subsystem: "bridge",
			Name:      "events_dispatched_total",
			Help:      "Domain events delivered to the sink by kind.",
		}, []string{"kind"}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicemux",
			Subsystem: "bridge",
			Name:      "connection_state",
			Help:      "Current connection state: 0 idle, 1 connecting, 2 open, 3 closed.",
		}),
	}
	reg.MustRegister(
		m.connects, m.reconnects, m.framesReceived, m.framesSent,
		m.decryptFailures, m.eventsDispatched, m.connectionState,
	)
	return m
}

func (m *Metrics) connectAttempt() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

func (m *Metrics) reconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) frameReceived(event string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) frameSent(event string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(event).Inc()
}

func (m *Metrics) decryptFailure() {
	if m == nil {
		return
	}
	m.decryptFailures.Inc()
}

func (m *Metrics) dispatched(kind Kind) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) stateChanged(s state) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(s))
}
