package tcpserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/gt06-gateway/internal/config"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/command"
	"github.com/taoyao-code/gt06-gateway/internal/gt06/connstate"
)

// HandlerFactory constructs the protocol state machine for one freshly
// accepted connection. w lets the returned Handler write back to this
// connection and is also what gets indexed for outbound command
// delivery (see WriterForConnection).
type HandlerFactory func(connID, remoteAddr string, w connstate.Writer) *connstate.Handler

// Server is the device-facing TCP gateway: it accepts connections,
// applies admission/rate control, and hands each one to a
// connstate.Handler for protocol processing.
type Server struct {
	cfg cfgpkg.TCPConfig
	log *zap.Logger

	ln         net.Listener
	wg         sync.WaitGroup
	stopC      chan struct{}
	nextConnID uint64

	factory HandlerFactory

	connLimiter *ConnectionLimiter
	rateLimiter *RateLimiter
	breaker     *CircuitBreaker

	mu       sync.RWMutex
	handlers map[string]*connstate.Handler
	conns    map[string]*ConnContext

	onAccept    func()
	onRecvBytes func(n int)
}

// New creates the TCP gateway. Call SetHandlerFactory before Start.
func New(cfg cfgpkg.TCPConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:         cfg,
		log:         log,
		stopC:       make(chan struct{}),
		handlers:    make(map[string]*connstate.Handler),
		conns:       make(map[string]*ConnContext),
		connLimiter: NewConnectionLimiter(cfg.MaxConnections, 2*time.Second),
		rateLimiter: NewRateLimiter(cfg.AcceptRatePerSec, cfg.AcceptBurst),
		breaker:     NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout),
	}
}

// SetHandlerFactory installs the per-connection protocol handler
// constructor. Must be called before Start.
func (s *Server) SetHandlerFactory(f HandlerFactory) { s.factory = f }

// SetMetricsCallbacks installs optional accept/recv-bytes counters.
func (s *Server) SetMetricsCallbacks(onAccept func(), onRecvBytes func(int)) {
	s.onAccept, s.onRecvBytes = onAccept, onRecvBytes
}

// Breaker exposes the store circuit breaker so callers (main wiring)
// can pass it to registry.WithCircuitBreaker without this package
// importing the registry package.
func (s *Server) Breaker() *CircuitBreaker { return s.breaker }

// Start begins listening and accepting connections in a background
// goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.rateLimiter.Allow() {
			s.log.Warn("connection rejected: accept rate exceeded", zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		acquireCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		acquireErr := s.connLimiter.Acquire(acquireCtx)
		cancel()
		if acquireErr != nil {
			s.log.Warn("connection rejected: connection limit exceeded", zap.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		if s.onAccept != nil {
			s.onAccept()
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer s.connLimiter.Release()

	cc := newConnContext(s, conn)
	connID := fmt.Sprintf("conn-%d", cc.ID())
	remoteAddr := conn.RemoteAddr().String()

	var handler *connstate.Handler
	if s.factory != nil {
		handler = s.factory(connID, remoteAddr, cc)
		s.mu.Lock()
		s.handlers[connID] = handler
		s.conns[connID] = cc
		s.mu.Unlock()
		cc.SetOnRead(func(b []byte) {
			handler.HandleBytes(context.Background(), b)
		})
	}

	cc.run()

	if handler != nil {
		s.mu.Lock()
		delete(s.handlers, connID)
		delete(s.conns, connID)
		s.mu.Unlock()
		handler.HandleClose()
	}
}

// WriterForConnection resolves connID to its live connstate.Handler,
// satisfying command.ConnLookup so a command.Dispatcher can deliver an
// outbound command frame without this package knowing about sessions.
func (s *Server) WriterForConnection(connID string) (command.Writer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[connID]
	if !ok {
		return nil, false
	}
	return h, true
}

// CloseConnection closes the connection identified by connID if it is
// still live, satisfying registry.ConnectionCloser so the TTL sweeper
// can tear down a connection whose session it just evicted.
func (s *Server) CloseConnection(connID string) {
	s.mu.RLock()
	cc, ok := s.conns[connID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	_ = cc.Close()
}

// ActiveConnections reports the number of currently live connections.
func (s *Server) ActiveConnections() int { return s.connLimiter.Current() }

// MaxConnections reports the configured connection ceiling.
func (s *Server) MaxConnections() int { return s.connLimiter.MaxConnections() }

// GetLimiterStats reports the accept-side rate limiter's stats.
func (s *Server) GetLimiterStats() *RateLimiterStats {
	st := s.rateLimiter.Stats()
	return &st
}

// GetCircuitBreakerStats reports the store circuit breaker's stats.
func (s *Server) GetCircuitBreakerStats() *CircuitBreakerStats {
	st := s.breaker.Stats()
	return &st
}

// GetLogger returns the server's logger, used by health checks that
// want to log diagnostics under the same sink.
func (s *Server) GetLogger() *zap.Logger { return s.log }

// Shutdown stops accepting new connections and waits for in-flight
// connections to drain, up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopC)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
