package tcpserver

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker(t *testing.T) {
	t.Run("state transitions", func(t *testing.T) {
		breaker := NewCircuitBreaker(3, 100*time.Millisecond)

		if breaker.State() != StateClosed {
			t.Fatalf("initial state should be Closed, got: %v", breaker.State())
		}

		// 3 consecutive failures should trip the breaker
		testErr := errors.New("test error")
		for i := 0; i < 3; i++ {
			_ = breaker.Call(func() error { return testErr })
		}

		if breaker.State() != StateOpen {
			t.Fatalf("should be Open after 3 failures, got: %v", breaker.State())
		}

		// while Open, calls fail fast
		err := breaker.Call(func() error { return nil })
		if err != ErrCircuitOpen {
			t.Fatalf("Open state should return ErrCircuitOpen, got: %v", err)
		}

		// after the cooldown, the breaker should allow a probe into HalfOpen
		time.Sleep(150 * time.Millisecond)

		err = breaker.Call(func() error { return nil })
		if err != nil {
			t.Fatalf("first call after cooldown should succeed: %v", err)
		}

		if breaker.State() != StateHalfOpen {
			t.Fatalf("should be HalfOpen after the probe, got: %v", breaker.State())
		}

		// continued successes should restore Closed
		for i := 0; i < 3; i++ {
			_ = breaker.Call(func() error { return nil })
		}

		if breaker.State() != StateClosed {
			t.Fatalf("should be Closed after sustained success, got: %v", breaker.State())
		}
	})

	t.Run("half-open failure re-trips immediately", func(t *testing.T) {
		breaker := NewCircuitBreaker(2, 100*time.Millisecond)

		testErr := errors.New("test error")
		_ = breaker.Call(func() error { return testErr })
		_ = breaker.Call(func() error { return testErr })

		if breaker.State() != StateOpen {
			t.Fatal("should be Open")
		}

		time.Sleep(150 * time.Millisecond)
		_ = breaker.Call(func() error { return nil }) // first success enters HalfOpen

		_ = breaker.Call(func() error { return testErr })

		if breaker.State() != StateOpen {
			t.Fatalf("a HalfOpen failure should re-trip to Open immediately, got: %v", breaker.State())
		}
	})

	t.Run("stats", func(t *testing.T) {
		breaker := NewCircuitBreaker(5, 1*time.Second)

		testErr := errors.New("test error")
		for i := 0; i < 3; i++ {
			_ = breaker.Call(func() error { return testErr })
		}

		for i := 0; i < 2; i++ {
			_ = breaker.Call(func() error { return nil })
		}

		stats := breaker.Stats()
		if stats.FailureCount != 3 {
			t.Errorf("expected 3 failures, got: %d", stats.FailureCount)
		}
		if stats.SuccessCount != 2 {
			t.Errorf("expected 2 successes, got: %d", stats.SuccessCount)
		}
		if stats.State != "closed" {
			t.Errorf("expected closed state, got: %s", stats.State)
		}
	})

	t.Run("state change callback", func(t *testing.T) {
		ch := make(chan struct {
			from State
			to   State
		}, 2)
		breaker := NewCircuitBreaker(2, 100*time.Millisecond)

		breaker.SetStateChangeCallback(func(from, to State) {
			ch <- struct {
				from State
				to   State
			}{from: from, to: to}
		})

		testErr := errors.New("test error")
		_ = breaker.Call(func() error { return testErr })
		_ = breaker.Call(func() error { return testErr })

		select {
		case evt := <-ch:
			if evt.from != StateClosed || evt.to != StateOpen {
				t.Errorf("wrong transition in callback, from: %v, to: %v", evt.from, evt.to)
			}
		case <-time.After(50 * time.Millisecond):
			t.Fatalf("state change callback did not fire")
		}
	})
}
