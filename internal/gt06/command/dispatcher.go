package command

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/gt06-gateway/internal/gt06/registry"
	"github.com/taoyao-code/gt06-gateway/internal/metrics"
)

// ErrNoSession is returned when a Descriptor names an IMEI with no
// registered session.
var ErrNoSession = errors.New("command: no session for imei")

// ErrNotConnected is returned when the Descriptor's session has no
// live connection to deliver the frame over.
var ErrNotConnected = errors.New("command: session has no bound connection")

// Writer is the delivery surface a Dispatcher needs from whatever owns
// the device's live connection: write the built frame, and record that
// a command with this serial was just sent so the response can later
// be correlated back to it (spec §4.3 supplemented "command/response
// correlation"). Implemented by connstate.Handler.
type Writer interface {
	Write(b []byte) error
	NoteSent(serial uint16)
}

// SessionLookup is the subset of *registry.Registry a Dispatcher needs.
type SessionLookup interface {
	GetByIMEI(ctx context.Context, imei string) (*registry.DeviceSession, bool)
}

// ConnLookup resolves a session's bound connection id to its Writer.
// Implemented by the TCP server's connection table.
type ConnLookup interface {
	WriterForConnection(connID string) (Writer, bool)
}

// Dispatcher implements spec §4.3's delivery contract: resolve the
// session for a Descriptor's IMEI, resolve that session's live
// connection, build the frame, and write it. Every failure is logged
// and dropped — there is no outbound retry queue (spec §4.3 "Delivery
// contract": "at most once, best effort").
type Dispatcher struct {
	sessions SessionLookup
	conns    ConnLookup
	log      *zap.Logger

	mu      sync.Mutex
	serials map[string]uint16 // session id -> last serial issued

	metrics *metrics.AppMetrics
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(sessions SessionLookup, conns ConnLookup, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sessions: sessions,
		conns:    conns,
		log:      log,
		serials:  make(map[string]uint16),
	}
}

// SetMetrics installs the gateway's Prometheus instrumentation. Nil is
// safe and leaves every counter update a no-op.
func (disp *Dispatcher) SetMetrics(m *metrics.AppMetrics) { disp.metrics = m }

// Dispatch builds d and delivers it to the device currently bound to
// d.IMEI's session. The returned error is for callers that want to
// surface delivery failure to an admin API caller; it is not retried
// internally.
func (disp *Dispatcher) Dispatch(ctx context.Context, d Descriptor) error {
	sess, ok := disp.sessions.GetByIMEI(ctx, d.IMEI)
	if !ok {
		disp.log.Warn("command dropped: no session", zap.String("imei", d.IMEI))
		disp.countDropped("no_session")
		return ErrNoSession
	}
	if sess.ConnectionID == "" {
		disp.log.Warn("command dropped: session has no connection", zap.String("imei", d.IMEI))
		disp.countDropped("not_connected")
		return ErrNotConnected
	}
	w, ok := disp.conns.WriterForConnection(sess.ConnectionID)
	if !ok {
		disp.log.Warn("command dropped: connection gone", zap.String("imei", d.IMEI), zap.String("conn", sess.ConnectionID))
		disp.countDropped("connection_gone")
		return ErrNotConnected
	}

	serial := disp.nextSerial(sess.ID)
	out, err := Build(d, serial)
	if err != nil {
		disp.log.Warn("command build failed", zap.String("imei", d.IMEI), zap.String("kind", string(d.Kind)), zap.Error(err))
		disp.countDropped("build_failed")
		return err
	}

	w.NoteSent(serial)
	if err := w.Write(out); err != nil {
		disp.log.Warn("command write failed", zap.String("imei", d.IMEI), zap.Error(err))
		disp.countDropped("write_failed")
		return err
	}
	disp.log.Info("command dispatched", zap.String("imei", d.IMEI), zap.String("kind", string(d.Kind)), zap.Uint16("serial", serial))
	if disp.metrics != nil {
		disp.metrics.CommandsDispatched.WithLabelValues(string(d.Kind)).Inc()
	}
	return nil
}

func (disp *Dispatcher) countDropped(reason string) {
	if disp.metrics != nil {
		disp.metrics.CommandsDropped.WithLabelValues(reason).Inc()
	}
}

func (disp *Dispatcher) nextSerial(sessionID string) uint16 {
	disp.mu.Lock()
	defer disp.mu.Unlock()
	disp.serials[sessionID]++
	return disp.serials[sessionID]
}
