package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a dedicated Prometheus registry with the
// standard Go/process collectors attached.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics is the gateway's business-level instrumentation: frame
// codec outcomes, ACK traffic, session churn, and outbound command
// delivery (spec §2's "Frame codec"/"Session registry"/"Command
// builder" shares, surfaced so an operator can see each without
// reading logs).
type AppMetrics struct {
	TCPAccepted      prometheus.Counter
	TCPBytesReceived prometheus.Counter

	FramesDecoded    *prometheus.CounterVec // labels: opcode
	FramesMalformed  prometheus.Counter
	CRCMismatchTotal prometheus.Counter
	ParseFailureTotal *prometheus.CounterVec // labels: opcode
	ACKsSentTotal    prometheus.Counter

	LoginsTotal       *prometheus.CounterVec // labels: variant
	SessionsActive    prometheus.Gauge
	SessionsRebound   prometheus.Counter
	SessionsEvicted   prometheus.Counter
	HeartbeatTotal    prometheus.Counter

	CommandsDispatched *prometheus.CounterVec // labels: kind
	CommandsDropped    *prometheus.CounterVec // labels: reason

	BusPublishFailureTotal prometheus.Counter
}

// NewAppMetrics constructs and registers the gateway's business
// metrics against reg.
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gt06_frames_decoded_total",
			Help: "Frames yielded by the codec, by protocol opcode.",
		}, []string{"opcode"}),
		FramesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_frames_malformed_total",
			Help: "Bytes the codec discarded while hunting for a header or skipping a rejected candidate frame.",
		}),
		CRCMismatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_crc_mismatch_total",
			Help: "Frames whose reported CRC did not match the computed CRC-ITU value.",
		}),
		ParseFailureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gt06_payload_parse_failure_total",
			Help: "Structurally valid frames whose body failed to decode, by opcode.",
		}, []string{"opcode"}),
		ACKsSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_acks_sent_total",
			Help: "Generic/login ACK frames written back to devices.",
		}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gt06_logins_total",
			Help: "Successful login frames, by detected device variant.",
		}, []string{"variant"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gt06_sessions_active",
			Help: "Current number of sessions resident in the registry.",
		}),
		SessionsRebound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_sessions_rebound_total",
			Help: "Logins that rebound an existing IMEI session to a new connection.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_sessions_evicted_total",
			Help: "Sessions removed by the TTL sweeper for exceeding the idle timeout.",
		}),
		HeartbeatTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_heartbeat_total",
			Help: "Heartbeat (0x23) frames observed.",
		}),
		CommandsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gt06_commands_dispatched_total",
			Help: "Outbound commands successfully written to a device connection, by kind.",
		}, []string{"kind"}),
		CommandsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gt06_commands_dropped_total",
			Help: "Outbound commands dropped before delivery, by reason.",
		}, []string{"reason"}),
		BusPublishFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gt06_bus_publish_failure_total",
			Help: "Telemetry publishes that still failed after every retry and were dropped.",
		}),
	}
	reg.MustRegister(
		m.TCPAccepted, m.TCPBytesReceived,
		m.FramesDecoded, m.FramesMalformed, m.CRCMismatchTotal, m.ParseFailureTotal, m.ACKsSentTotal,
		m.LoginsTotal, m.SessionsActive, m.SessionsRebound, m.SessionsEvicted, m.HeartbeatTotal,
		m.CommandsDispatched, m.CommandsDropped,
		m.BusPublishFailureTotal,
	)
	return m
}
