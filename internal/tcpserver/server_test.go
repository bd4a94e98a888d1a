package tcpserver

import (
	"context"
	"net"
	"testing"
	"time"

	cfgpkg "github.com/taoyao-code/gt06-gateway/internal/config"
)

func testConfig(addr string) cfgpkg.TCPConfig {
	return cfgpkg.TCPConfig{
		Addr:             addr,
		ReadTimeout:      time.Second,
		WriteTimeout:     time.Second,
		MaxConnections:   10,
		AcceptRatePerSec: 1000,
		AcceptBurst:      1000,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Second,
	}
}

func TestServerAcceptsConnectionAndReportsReceivedBytes(t *testing.T) {
	received := make(chan []byte, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := New(testConfig(addr), nil)
	s.SetMetricsCallbacks(nil, func(n int) {
		received <- []byte{byte(n)}
	})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Shutdown(context.Background())

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to observe bytes")
	}

	if s.ActiveConnections() != 1 {
		t.Errorf("active connections = %d, want 1", s.ActiveConnections())
	}
}

func TestServerRejectsBeyondConnectionLimit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(addr)
	cfg.MaxConnections = 1
	s := New(cfg, nil)
	s.connLimiter = NewConnectionLimiter(1, 50*time.Millisecond)

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Shutdown(context.Background())

	conn1, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial 1 failed: %v", err)
	}
	defer conn1.Close()

	time.Sleep(100 * time.Millisecond)
	if s.ActiveConnections() != 1 {
		t.Fatalf("expected 1 active connection, got %d", s.ActiveConnections())
	}

	conn2, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial 2 failed: %v", err)
	}
	defer conn2.Close()

	time.Sleep(200 * time.Millisecond)
	if s.ActiveConnections() != 1 {
		t.Errorf("expected second connection to be rejected, active = %d", s.ActiveConnections())
	}
}
