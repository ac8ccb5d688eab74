package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opd-ai/audiolink"
)

const (
	metricsNamespace = "audiolink"
	metricsSubsystem = "receiver"
)

// metrics registers the Prometheus collectors for one server. Counters and
// gauges are collector functions evaluated at scrape time from the stats
// source, so the registry never holds state of its own.
type metrics struct {
	registry *prometheus.Registry
}

func newMetrics(s *Server) *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}
	factory := promauto.With(m.registry)

	counter := func(name, help string, value func(audiolink.Stats) float64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(s.source()) })
	}
	gauge := func(name, help string, value func(audiolink.Stats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(s.source()) })
	}

	counter("packets_received_total", "Media packets accepted from the socket",
		func(st audiolink.Stats) float64 { return float64(st.PacketsReceived) })
	counter("bytes_received_total", "Datagram bytes accepted from the socket",
		func(st audiolink.Stats) float64 { return float64(st.BytesReceived) })
	counter("format_errors_total", "Datagrams rejected by the wire codec",
		func(st audiolink.Stats) float64 { return float64(st.FormatErrors) })
	counter("queue_drops_total", "Packets evicted from the ingest queue",
		func(st audiolink.Stats) float64 { return float64(st.QueueDrops) })
	counter("loss_total", "Sequence gaps skipped at playout",
		func(st audiolink.Stats) float64 { return float64(st.LossCount) })
	counter("reordered_total", "Packets that arrived out of sequence order",
		func(st audiolink.Stats) float64 { return float64(st.ReorderedCount) })
	counter("late_dropped_total", "Packets discarded for missing their deadline",
		func(st audiolink.Stats) float64 { return float64(st.LateDropped) })
	counter("underruns_total", "Playout pulls that found the buffer empty",
		func(st audiolink.Stats) float64 { return float64(st.Underruns) })
	counter("fec_recovered_total", "Media packets rebuilt from redundancy",
		func(st audiolink.Stats) float64 { return float64(st.FecRecovered) })
	counter("fec_unrecoverable_total", "Redundancy groups abandoned without recovery",
		func(st audiolink.Stats) float64 { return float64(st.FecUnrecoverable) })
	counter("frames_decoded_total", "Frames decoded from delivered packets",
		func(st audiolink.Stats) float64 { return float64(st.FramesDecoded) })
	counter("frames_concealed_total", "Frames synthesized to cover losses",
		func(st audiolink.Stats) float64 { return float64(st.FramesConcealed) })
	counter("decode_errors_total", "Payloads the decoder rejected",
		func(st audiolink.Stats) float64 { return float64(st.DecodeErrors) })
	counter("deadline_misses_total", "Playout cycles exceeding the frame budget",
		func(st audiolink.Stats) float64 { return float64(st.DeadlineMisses) })

	gauge("queue_depth", "Packets waiting in the ingest queue",
		func(st audiolink.Stats) float64 { return float64(st.CurrentQueueDepth) })
	gauge("buffer_depth", "Packets held in the jitter buffer",
		func(st audiolink.Stats) float64 { return float64(st.BufferDepth) })
	gauge("buffer_delay_seconds", "Current jitter buffer target delay",
		func(st audiolink.Stats) float64 { return st.CurrentBufferDelay.Seconds() })
	gauge("jitter_seconds", "Interarrival jitter estimate",
		func(st audiolink.Stats) float64 { return st.Jitter.Seconds() })
	gauge("loss_percent", "Observed loss percentage over the measurement window",
		func(st audiolink.Stats) float64 { return st.LossPercent })
	gauge("recommended_fec_percent", "Redundancy percentage recommended to the sender",
		func(st audiolink.Stats) float64 { return st.RecommendedFec })
	gauge("meeting_deadline", "Whether playout is keeping realtime (1) or not (0)",
		func(st audiolink.Stats) float64 {
			if st.MeetingDeadline {
				return 1
			}
			return 0
		})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "cpu_percent",
		Help:      "Process CPU usage percentage",
	}, s.cpuPercent)

	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
