package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	families, err := reg.Gather()
	require.NoError(t, err)

	ret := make(map[string]float64)

	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				ret[fam.GetName()] += m.GetCounter().GetValue()

			case dto.MetricType_GAUGE:
				ret[fam.GetName()] += m.GetGauge().GetValue()
			}
		}
	}

	return ret
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "")

	m.MalformedPacket()
	m.SequenceGap(3)
	m.SequenceGap(1)
	m.DroppedPackets(2)
	m.DroppedPackets(0)
	m.DecodeError()
	m.EncodeError()
	m.ConcealedFrames(4)
	m.QueueOverflow()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.Transition("active", "closed")

	require.Equal(t, map[string]float64{
		"rtpaac_malformed_packets_total":   1,
		"rtpaac_sequence_gaps_total":       2,
		"rtpaac_lost_packets_total":        4,
		"rtpaac_dropped_packets_total":     2,
		"rtpaac_decode_errors_total":       1,
		"rtpaac_encode_errors_total":       1,
		"rtpaac_concealed_frames_total":    4,
		"rtpaac_queue_overflows_total":     1,
		"rtpaac_sessions_active":           1,
		"rtpaac_session_transitions_total": 1,
	}, gather(t, reg))
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.MalformedPacket()
		m.SequenceGap(1)
		m.DroppedPackets(1)
		m.DecodeError()
		m.EncodeError()
		m.ConcealedFrames(1)
		m.QueueOverflow()
		m.SessionOpened()
		m.SessionClosed()
		m.Transition("active", "closed")
	})
}

func TestMetricsUnregistered(t *testing.T) {
	m := New(nil, "test")
	m.DecodeError()

	reg := prometheus.NewRegistry()
	m2 := New(reg, "test")
	m2.EncodeError()

	require.Equal(t, float64(0), gather(t, reg)["test_decode_errors_total"])
	require.Equal(t, float64(1), gather(t, reg)["test_encode_errors_total"])
}
