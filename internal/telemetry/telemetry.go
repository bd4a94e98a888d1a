// Package telemetry publishes decoded device records onto the event
// bus (spec §4.6). It is fire-and-forget with at-least-once semantics:
// the call site never blocks past the initial attempt, and a publish
// failure is retried a bounded number of times on a background
// goroutine with escalating backoff before being logged at warn and
// dropped (spec §7 "BusUnavailable") — the retry/backoff shape is
// grounded on the teacher's internal/thirdparty.Pusher, which retries
// failed webhook deliveries the same way.
package telemetry

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gt06-gateway/internal/metrics"
)

// Publisher is the subset of *nats.Conn the emitter depends on,
// narrowed to an interface so tests can substitute a recording fake
// instead of a live NATS connection.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Topics names the three subjects spec §6.3 enumerates. Topic naming
// is caller-supplied; the spec fixes only the decoded field set.
type Topics struct {
	Sessions string
	Location string
	Status   string
}

// DefaultTopics returns the topic names spec §6.3 names by example.
func DefaultTopics() Topics {
	return Topics{
		Sessions: "device.sessions",
		Location: "device.location",
		Status:   "device.status",
	}
}

// Emitter translates decoded records into bus messages keyed by IMEI
// (spec §4.6). Exactly one instance is constructed at startup and
// passed explicitly to every connection worker (spec §9 "no ambient
// singletons").
type Emitter struct {
	pub    Publisher
	topics Topics
	log    *zap.Logger

	metrics *metrics.AppMetrics

	retries int
	backoff []time.Duration
}

// New constructs an Emitter. pub may be nil, in which case every Emit
// call is a no-op (the gateway still functions with the bus down).
// Retry count and backoff schedule mirror thirdparty.Pusher's
// defaults, scaled down for an in-process bus publish rather than an
// outbound HTTP call.
func New(pub Publisher, topics Topics, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{
		pub:     pub,
		topics:  topics,
		log:     log,
		retries: 3,
		backoff: []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond},
	}
}

// SetMetrics installs the gateway's Prometheus instrumentation. Nil is
// safe and leaves the bus-failure counter update a no-op.
func (e *Emitter) SetMetrics(m *metrics.AppMetrics) { e.metrics = m }

// Envelope carries the fields common to every telemetry message: the
// routing key (IMEI, or session id when the IMEI is not yet known) and
// the publish timestamp.
type Envelope struct {
	Key       string    `json:"key"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionEventKind distinguishes the lifecycle events published to the
// sessions topic.
type SessionEventKind string

const (
	SessionConnected    SessionEventKind = "connected"
	SessionRebound      SessionEventKind = "rebound"
	SessionDisconnected SessionEventKind = "disconnected"
)

// SessionMessage reports a session lifecycle transition.
type SessionMessage struct {
	Envelope
	Event         SessionEventKind `json:"event"`
	IMEI          string           `json:"imei"`
	DeviceVariant string           `json:"device_variant"`
	RemoteAddress string           `json:"remote_address"`
}

// LocationMessage reports a decoded (or best-effort unparsable) GPS
// fix.
type LocationMessage struct {
	Envelope
	IMEI       string  `json:"imei"`
	Opcode     byte    `json:"opcode"`
	Latitude   float64 `json:"latitude,omitempty"`
	Longitude  float64 `json:"longitude,omitempty"`
	Altitude   int16   `json:"altitude,omitempty"`
	SpeedKMH   uint8   `json:"speed_kmh,omitempty"`
	Course     uint16  `json:"course,omitempty"`
	Satellites uint8   `json:"satellites,omitempty"`
	Valid      bool    `json:"valid"`
	DeviceTime string  `json:"device_time,omitempty"`
	// MCC/MNC/LAC/CID are populated instead of the GPS fields for the
	// cell-tower-only opcodes (spec §4.2 LBS), since they ride the same
	// topic rather than a dedicated one the spec never names.
	MCC        uint16 `json:"mcc,omitempty"`
	MNC        uint8  `json:"mnc,omitempty"`
	LAC        uint16 `json:"lac,omitempty"`
	CID        uint32 `json:"cid,omitempty"`
	Unparsable bool   `json:"unparsable,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// StatusMessage reports a decoded (or best-effort unparsable) status
// record.
type StatusMessage struct {
	Envelope
	IMEI       string `json:"imei"`
	Opcode     byte   `json:"opcode"`
	BatteryPct uint8  `json:"battery_pct,omitempty"`
	SignalPct  uint8  `json:"signal_pct,omitempty"`
	AlarmBits  byte   `json:"alarm_bits,omitempty"`
	Unparsable bool   `json:"unparsable,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func key(imei, sessionID string) string {
	if imei != "" {
		return imei
	}
	return sessionID
}

// EmitSession publishes a session lifecycle event.
func (e *Emitter) EmitSession(msg SessionMessage) {
	msg.Key = key(msg.IMEI, msg.SessionID)
	e.publish(e.topics.Sessions, msg)
}

// EmitLocation publishes a decoded location fix.
func (e *Emitter) EmitLocation(msg LocationMessage) {
	msg.Key = key(msg.IMEI, msg.SessionID)
	e.publish(e.topics.Location, msg)
}

// EmitStatus publishes a decoded status record.
func (e *Emitter) EmitStatus(msg StatusMessage) {
	msg.Key = key(msg.IMEI, msg.SessionID)
	e.publish(e.topics.Status, msg)
}

// publish makes one synchronous attempt and, on failure, hands the
// rest of the retry schedule to a background goroutine so the calling
// connection's frame loop never waits on bus retries.
func (e *Emitter) publish(subject string, v any) {
	if e.pub == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		e.log.Warn("telemetry: marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := e.pub.Publish(subject, data); err != nil {
		go e.retryPublish(subject, data, err)
	}
}

// retryPublish replays a failed publish through the backoff schedule,
// logging and counting a BusUnavailable outcome only once every retry
// is exhausted (spec §7).
func (e *Emitter) retryPublish(subject string, data []byte, lastErr error) {
	for attempt := 0; attempt < e.retries; attempt++ {
		time.Sleep(e.backoff[min(attempt, len(e.backoff)-1)])
		if err := e.pub.Publish(subject, data); err == nil {
			return
		} else {
			lastErr = err
		}
	}
	e.log.Warn("telemetry: publish failed after retries",
		zap.String("subject", subject), zap.Int("attempts", e.retries+1), zap.Error(lastErr))
	if e.metrics != nil {
		e.metrics.BusPublishFailureTotal.Inc()
	}
}
