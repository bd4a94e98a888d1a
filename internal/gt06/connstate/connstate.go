// Package connstate drives the per-connection protocol state machine
// (spec §4.5): it owns exactly one live TCP connection's lifecycle,
// turning decoded frames into registry updates, ACKs, and telemetry.
package connstate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/gt06-gateway/internal/gt06/command"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/frame"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/payload"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/registry"
	"github.com/taoyao-code/gt06-gateway/internal/metrics"
	"github.com/taoyao-code/gt06-gateway/internal/telemetry"
)

// State is a connection's position in the spec §4.5 lifecycle.
type State int32

const (
	StateOpen State = iota
	StateAuthenticated
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Writer is the minimal transport capability a Handler needs: writing
// raw bytes back to the device on its own connection. Implemented by
// tcpserver.ConnContext.
type Writer interface {
	Write(b []byte) error
}

// Handler drives a single connection's protocol state machine. Exactly
// one Handler is constructed per accepted TCP connection; it is not
// safe for concurrent use by more than one goroutine, since a
// connection's frames are processed strictly in arrival order (spec
// §5 "Per-connection ordering").
type Handler struct {
	connID     string
	remoteAddr string
	conn       Writer

	registry *registry.Registry
	emitter  *telemetry.Emitter

	decoder *frame.Decoder
	opts    frame.Options

	log *zap.Logger

	state   State
	session *registry.DeviceSession

	tracker     *command.Tracker
	metrics     *metrics.AppMetrics
	lastSkipped int64
}

// New constructs a Handler for one freshly-accepted connection.
func New(connID, remoteAddr string, conn Writer, reg *registry.Registry, emitter *telemetry.Emitter, opts frame.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		connID:     connID,
		remoteAddr: remoteAddr,
		conn:       conn,
		registry:   reg,
		emitter:    emitter,
		decoder:    frame.NewDecoder(opts),
		opts:       opts,
		log:        log,
		state:      StateOpen,
		tracker:    command.NewTracker(64),
	}
}

// State returns the connection's current lifecycle state.
func (h *Handler) State() State { return h.state }

// SetMetrics installs the gateway's Prometheus instrumentation. Nil is
// safe and leaves every counter update a no-op.
func (h *Handler) SetMetrics(m *metrics.AppMetrics) { h.metrics = m }

// Write implements command.Writer, letting a command.Dispatcher
// deliver a built frame straight to this connection.
func (h *Handler) Write(b []byte) error { return h.conn.Write(b) }

// NoteSent implements command.Writer, recording an outbound command's
// serial so a later 0x8A response can be correlated back to it.
func (h *Handler) NoteSent(serial uint16) { h.tracker.Record(serial, time.Now()) }

// HandleBytes feeds newly-read bytes through the frame codec and
// dispatches every complete frame it yields, in order.
func (h *Handler) HandleBytes(ctx context.Context, data []byte) {
	frames := h.decoder.Feed(data)
	h.countMalformed()
	for _, fr := range frames {
		h.handleFrame(ctx, fr)
	}
}

// countMalformed reports the garbage bytes the codec discarded while
// hunting for the next header since the last call, as a proxy for
// candidates it rejected outright. The decoder stays I/O- and
// metrics-free; this is the only signal it surfaces.
func (h *Handler) countMalformed() {
	if h.metrics == nil {
		return
	}
	skipped := h.decoder.Skipped()
	if delta := skipped - h.lastSkipped; delta > 0 {
		h.metrics.FramesMalformed.Add(float64(delta))
	}
	h.lastSkipped = skipped
}

// HandleClose releases this connection's registry binding and, if a
// session had been bound, emits a disconnected lifecycle event. Called
// exactly once by the owning transport when the connection ends.
func (h *Handler) HandleClose() {
	h.state = StateClosing
	if h.registry != nil {
		h.registry.RemoveByConnection(h.connID)
	}
	if h.session != nil {
		h.emitter.EmitSession(telemetry.SessionMessage{
			Envelope:      telemetry.Envelope{SessionID: h.session.ID, Timestamp: time.Now()},
			Event:         telemetry.SessionDisconnected,
			IMEI:          h.session.IMEI,
			DeviceVariant: string(h.session.DeviceVariant),
			RemoteAddress: h.remoteAddr,
		})
	}
}

func (h *Handler) handleFrame(ctx context.Context, fr *frame.Frame) {
	if !h.opts.Accept(fr) {
		h.log.Debug("frame rejected by strict policy",
			zap.String("conn", h.connID), zap.Uint8("opcode", fr.Protocol), zap.Bool("crc_valid", fr.CRCValid))
		return
	}
	h.countFrame(fr)
	if !fr.CRCValid {
		h.log.Debug("frame crc mismatch, accepting anyway", zap.String("conn", h.connID), zap.Uint16("serial", fr.Serial))
		if h.metrics != nil {
			h.metrics.CRCMismatchTotal.Inc()
		}
	}
	if !fr.StopBitsRecognized {
		h.log.Debug("frame stop bits unrecognized, accepting anyway", zap.String("conn", h.connID), zap.Uint16("stop_bits", fr.StopBits))
	}

	op := payload.Opcode(fr.Protocol)

	if op == payload.OpLogin {
		h.handleLogin(ctx, fr)
		return
	}

	// Every opcode but login requires an already-authenticated session;
	// an unauthenticated device gets silently dropped, never ACKed,
	// which forces it back through login (spec §4.5 "Universal
	// invariants").
	if h.session == nil || !h.session.Authenticated {
		h.log.Debug("auth required, dropping frame", zap.String("conn", h.connID), zap.Uint8("opcode", fr.Protocol))
		return
	}

	if op == payload.OpHeartbeat {
		if h.metrics != nil {
			h.metrics.HeartbeatTotal.Inc()
		}
		h.touchSession(ctx)
		h.ack(fr)
		return
	}

	decoded, err := payload.Decode(op, fr.Body)
	if err != nil {
		h.log.Debug("payload parse failure", zap.String("conn", h.connID), zap.Uint8("opcode", fr.Protocol), zap.Error(err))
		if h.metrics != nil {
			h.metrics.ParseFailureTotal.WithLabelValues(opcodeLabel(op)).Inc()
		}
		h.emitUnparsable(op, err)
		h.touchSession(ctx)
		h.ack(fr)
		return
	}

	switch {
	case decoded.Location != nil:
		h.handleLocation(op, decoded.Location)
	case decoded.Status != nil:
		h.handleStatus(decoded.Status)
	case decoded.LBS != nil:
		h.handleLBS([]*payload.LBS{decoded.LBS})
	case decoded.LBSMulti != nil:
		h.handleLBS(decoded.LBSMulti)
	case decoded.CmdResp != nil:
		h.handleCommandResponse(decoded.CmdResp)
	}

	h.touchSession(ctx)
	h.ack(fr)
}

func (h *Handler) handleLogin(ctx context.Context, fr *frame.Frame) {
	imei, err := payload.DecodeIMEI(fr.Body)
	if err != nil {
		h.log.Warn("login imei decode failed", zap.String("conn", h.connID), zap.Error(err))
		h.ack(fr)
		return
	}

	_, existedBefore := h.registry.GetByIMEI(ctx, imei)
	variant := DetectVariant(len(fr.Body))

	sess, err := h.registry.CreateOrRebind(ctx, imei, h.connID, h.remoteAddr, variant)
	if err != nil {
		h.log.Warn("registry create_or_rebind failed", zap.String("imei", imei), zap.Error(err))
		h.ack(fr)
		return
	}

	h.session = sess
	h.state = StateAuthenticated

	event := telemetry.SessionConnected
	if existedBefore {
		event = telemetry.SessionRebound
	}
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(string(sess.DeviceVariant)).Inc()
		if existedBefore {
			h.metrics.SessionsRebound.Inc()
		}
	}
	h.emitter.EmitSession(telemetry.SessionMessage{
		Envelope:      telemetry.Envelope{SessionID: sess.ID, Timestamp: time.Now()},
		Event:         event,
		IMEI:          sess.IMEI,
		DeviceVariant: string(sess.DeviceVariant),
		RemoteAddress: sess.RemoteAddress,
	})

	h.log.Info("device authenticated",
		zap.String("conn", h.connID), zap.String("imei", imei), zap.String("variant", string(sess.DeviceVariant)), zap.String("event", string(event)))

	h.ack(fr)
}

func (h *Handler) handleStatus(st *payload.Status) {
	if h.session.DeviceVariant == registry.VariantV5 {
		// V5 units report status as their primary telemetry channel
		// rather than GPS fixes; the first one is worth a log line, the
		// rest would just be noise (spec §4.5 "V5 status carve-out").
		if !h.session.HasReceivedStatusAdvice {
			h.log.Info("v5 device reporting status as primary telemetry", zap.String("imei", h.session.IMEI))
			h.session.HasReceivedStatusAdvice = true
		}
	} else if !h.session.HasReceivedStatusAdvice {
		h.log.Warn("status frame from non-V5 device variant", zap.String("imei", h.session.IMEI), zap.String("variant", string(h.session.DeviceVariant)))
		h.session.HasReceivedStatusAdvice = true
	}

	h.emitter.EmitStatus(telemetry.StatusMessage{
		Envelope:   telemetry.Envelope{SessionID: h.session.ID, Timestamp: time.Now()},
		IMEI:       h.session.IMEI,
		Opcode:     byte(payload.OpStatus),
		BatteryPct: st.BatteryPct,
		SignalPct:  st.SignalPct,
		AlarmBits:  st.AlarmBits,
	})
}

func (h *Handler) handleLocation(op payload.Opcode, loc *payload.Location) {
	h.session.HasReceivedLocation = true

	var deviceTime string
	if loc.Year > 0 {
		deviceTime = time.Date(loc.Year, time.Month(loc.Month), loc.Day, loc.Hour, loc.Minute, loc.Second, 0, time.UTC).Format(time.RFC3339)
	}

	h.emitter.EmitLocation(telemetry.LocationMessage{
		Envelope:   telemetry.Envelope{SessionID: h.session.ID, Timestamp: time.Now()},
		IMEI:       h.session.IMEI,
		Opcode:     byte(op),
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Altitude:   loc.Altitude,
		SpeedKMH:   loc.SpeedKMH,
		Course:     loc.Course,
		Satellites: loc.Satellites,
		Valid:      loc.Valid,
		DeviceTime: deviceTime,
	})
}

func (h *Handler) handleLBS(records []*payload.LBS) {
	for _, rec := range records {
		h.emitter.EmitLocation(telemetry.LocationMessage{
			Envelope: telemetry.Envelope{SessionID: h.session.ID, Timestamp: time.Now()},
			IMEI:     h.session.IMEI,
			Opcode:   byte(payload.OpLBSPhone),
			MCC:      rec.MCC,
			MNC:      rec.MNC,
			LAC:      rec.LAC,
			CID:      rec.CID,
		})
	}
}

func (h *Handler) handleCommandResponse(resp *payload.CommandResponse) {
	if d, ok := h.tracker.Resolve(resp.Serial, time.Now()); ok {
		h.log.Info("command acknowledged", zap.String("imei", h.session.IMEI), zap.Uint16("serial", resp.Serial), zap.Duration("rtt", d))
		return
	}
	h.log.Debug("command response for unknown serial", zap.String("imei", h.session.IMEI), zap.Uint16("serial", resp.Serial))
}

func (h *Handler) emitUnparsable(op payload.Opcode, err error) {
	if h.session == nil {
		return
	}
	if payload.IsLocation(op) {
		h.emitter.EmitLocation(telemetry.LocationMessage{
			Envelope:   telemetry.Envelope{SessionID: h.session.ID, Timestamp: time.Now()},
			IMEI:       h.session.IMEI,
			Opcode:     byte(op),
			Unparsable: true,
			Reason:     err.Error(),
		})
		return
	}
	h.emitter.EmitStatus(telemetry.StatusMessage{
		Envelope:   telemetry.Envelope{SessionID: h.session.ID, Timestamp: time.Now()},
		IMEI:       h.session.IMEI,
		Opcode:     byte(op),
		Unparsable: true,
		Reason:     err.Error(),
	})
}

func (h *Handler) ack(fr *frame.Frame) {
	out := frame.Encode(fr.Protocol, nil, fr.Serial)
	if err := h.conn.Write(out); err != nil {
		h.log.Warn("ack write failed", zap.String("conn", h.connID), zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.ACKsSentTotal.Inc()
	}
}

func (h *Handler) touchSession(ctx context.Context) {
	if h.session == nil {
		return
	}
	h.session.LastActivityAt = time.Now()
	if err := h.registry.Save(ctx, h.session); err != nil {
		h.log.Warn("session save failed", zap.String("conn", h.connID), zap.Error(err))
	}
}

func (h *Handler) countFrame(fr *frame.Frame) {
	if h.metrics == nil {
		return
	}
	h.metrics.FramesDecoded.WithLabelValues(opcodeLabel(payload.Opcode(fr.Protocol))).Inc()
}

func opcodeLabel(op payload.Opcode) string {
	return fmt.Sprintf("0x%02X", byte(op))
}
