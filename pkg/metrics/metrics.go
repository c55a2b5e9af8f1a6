// Package metrics contains Prometheus counters of RTP/MPEG-4 Audio sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultNamespace = "rtpaac"

// Metrics is a set of counters shared by sessions and codec adapters.
// All methods can be called on a nil *Metrics.
type Metrics struct {
	malformedPackets prometheus.Counter
	sequenceGaps     prometheus.Counter
	lostPackets      prometheus.Counter
	droppedPackets   prometheus.Counter
	decodeErrors     prometheus.Counter
	encodeErrors     prometheus.Counter
	concealedFrames  prometheus.Counter
	queueOverflows   prometheus.Counter
	sessionsActive   prometheus.Gauge
	transitions      *prometheus.CounterVec
}

// New allocates Metrics and registers them into reg.
// When reg is nil, metrics are allocated but not registered.
// It panics when metrics with the same namespace are already registered into reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}

	factory := promauto.With(reg)

	counter := func(name string, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		malformedPackets: counter("malformed_packets_total",
			"Number of RTP packets discarded because of an invalid AU-header section"),
		sequenceGaps: counter("sequence_gaps_total",
			"Number of discontinuities in received RTP sequence numbers"),
		lostPackets: counter("lost_packets_total",
			"Number of RTP packets that never arrived or were discarded"),
		droppedPackets: counter("dropped_packets_total",
			"Number of duplicate or late RTP packets"),
		decodeErrors: counter("decode_errors_total",
			"Number of access units that could not be decoded"),
		encodeErrors: counter("encode_errors_total",
			"Number of PCM frames that could not be encoded"),
		concealedFrames: counter("concealed_frames_total",
			"Number of PCM frames generated in place of missing access units"),
		queueOverflows: counter("queue_overflows_total",
			"Number of access units discarded because the render queue was full"),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions that are not closed",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Number of session state transitions",
		}, []string{"from_state", "to_state"}),
	}
}

// MalformedPacket increases the number of malformed packets.
func (m *Metrics) MalformedPacket() {
	if m != nil {
		m.malformedPackets.Inc()
	}
}

// SequenceGap increases the number of gaps and of lost packets.
func (m *Metrics) SequenceGap(lost uint64) {
	if m != nil {
		m.sequenceGaps.Inc()
		m.lostPackets.Add(float64(lost))
	}
}

// DroppedPackets increases the number of dropped packets.
func (m *Metrics) DroppedPackets(n uint64) {
	if m != nil && n != 0 {
		m.droppedPackets.Add(float64(n))
	}
}

// DecodeError increases the number of decode errors.
func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

// EncodeError increases the number of encode errors.
func (m *Metrics) EncodeError() {
	if m != nil {
		m.encodeErrors.Inc()
	}
}

// ConcealedFrames increases the number of concealed frames.
func (m *Metrics) ConcealedFrames(n int) {
	if m != nil && n != 0 {
		m.concealedFrames.Add(float64(n))
	}
}

// QueueOverflow increases the number of queue overflows.
func (m *Metrics) QueueOverflow() {
	if m != nil {
		m.queueOverflows.Inc()
	}
}

// SessionOpened increases the number of active sessions.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessionsActive.Inc()
	}
}

// SessionClosed decreases the number of active sessions.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessionsActive.Dec()
	}
}

// Transition counts a session state transition.
func (m *Metrics) Transition(from string, to string) {
	if m != nil {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}
