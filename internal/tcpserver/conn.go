package tcpserver

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ConnContext owns one accepted TCP connection's read/write loop and
// exposes a callback hook for upstream bytes.
type ConnContext struct {
	s          *Server
	c          net.Conn
	id         uint64
	writeC     chan []byte
	closed     int32
	onRead     func([]byte)
	doneC      chan struct{}
	frameLimit *RateLimiter
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	return &ConnContext{
		s:          s,
		c:          c,
		id:         atomic.AddUint64(&s.nextConnID, 1),
		writeC:     make(chan []byte, 128),
		doneC:      make(chan struct{}),
		frameLimit: NewRateLimiter(s.cfg.FrameRatePerSec, s.cfg.FrameBurst),
	}
}

// ID returns the connection's process-local, monotonically increasing
// identifier.
func (cc *ConnContext) ID() uint64 { return cc.id }

// RemoteAddr returns the peer's address.
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// SetOnRead installs the callback invoked with each chunk of bytes
// read off the wire.
func (cc *ConnContext) SetOnRead(h func([]byte)) { cc.onRead = h }

// Write queues b for asynchronous delivery, bounded by the server's
// write timeout.
func (cc *ConnContext) Write(b []byte) error {
	if atomic.LoadInt32(&cc.closed) == 1 {
		return errors.New("connection closed")
	}
	dup := make([]byte, len(b))
	copy(dup, b)
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	select {
	case cc.writeC <- dup:
		return nil
	case <-time.After(to):
		return errors.New("write queue timeout")
	}
}

// Close closes the connection and its write queue. Safe to call more
// than once.
func (cc *ConnContext) Close() error {
	if !atomic.CompareAndSwapInt32(&cc.closed, 0, 1) {
		return nil
	}
	close(cc.writeC)
	return cc.c.Close()
}

// run drives the read/write loops until the connection ends.
func (cc *ConnContext) run() {
	defer cc.Close()
	_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
	_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))

	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		for msg := range cc.writeC {
			if cc.s.cfg.WriteTimeout > 0 {
				_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
			}
			_, _ = cc.c.Write(msg)
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := cc.c.Read(buf)
		if n > 0 {
			if cc.s.onRecvBytes != nil {
				cc.s.onRecvBytes(n)
			}
			if cc.onRead != nil {
				if cc.frameLimit.Allow() {
					cc.onRead(buf[:n])
				} else {
					cc.s.log.Debug("dropping bytes: per-connection frame rate exceeded", zap.Uint64("conn", cc.id))
				}
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if cc.s.cfg.ReadTimeout > 0 {
					_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
				}
				continue
			}
			break
		}
	}
	<-doneW
	select {
	case <-cc.doneC:
	default:
		close(cc.doneC)
	}
}

// Done returns a channel closed once the connection has ended.
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }
