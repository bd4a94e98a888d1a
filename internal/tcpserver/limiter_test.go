package tcpserver

import (
	"context"
	"testing"
	"time"
)

func TestConnectionLimiter(t *testing.T) {
	t.Run("basic limiting", func(t *testing.T) {
		limiter := NewConnectionLimiter(3, 1*time.Second)

		ctx := context.Background()
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("1st acquire failed: %v", err)
		}
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("2nd acquire failed: %v", err)
		}
		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("3rd acquire failed: %v", err)
		}

		// the 4th should time out
		ctx4, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		if err := limiter.Acquire(ctx4); err == nil {
			t.Fatal("4th acquire should have failed")
		}

		limiter.Release()

		if err := limiter.Acquire(ctx); err != nil {
			t.Fatalf("acquire after release failed: %v", err)
		}
	})

	t.Run("stats", func(t *testing.T) {
		limiter := NewConnectionLimiter(10, 1*time.Second)

		for i := 0; i < 5; i++ {
			_ = limiter.Acquire(context.Background())
		}

		stats := limiter.Stats()
		if stats.ActiveConnections != 5 {
			t.Errorf("expected 5 active connections, got: %d", stats.ActiveConnections)
		}
		if stats.MaxConnections != 10 {
			t.Errorf("expected max 10 connections, got: %d", stats.MaxConnections)
		}
		if stats.Utilization != 0.5 {
			t.Errorf("expected utilization 0.5, got: %.2f", stats.Utilization)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("rate limiting", func(t *testing.T) {
		limiter := NewRateLimiter(10, 20) // 10/sec sustained, burst of 20

		for i := 0; i < 20; i++ {
			if !limiter.Allow() {
				t.Fatalf("burst request %d was rejected", i+1)
			}
		}

		// the 21st should be rejected
		if limiter.Allow() {
			t.Fatal("21st request should have been rejected")
		}

		// after 150ms, at least one token should have refilled
		time.Sleep(150 * time.Millisecond)
		if !limiter.Allow() {
			t.Fatal("request after the wait should succeed")
		}
	})

	t.Run("stats", func(t *testing.T) {
		limiter := NewRateLimiter(100, 200)

		for i := 0; i < 10; i++ {
			limiter.Allow()
		}

		stats := limiter.Stats()
		if stats.AllowedTotal != 10 {
			t.Errorf("expected 10 allowed, got: %d", stats.AllowedTotal)
		}
	})
}
