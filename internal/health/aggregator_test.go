package health

import (
	"context"
	"testing"
	"time"
)

// mockChecker is a fake Checker for exercising Aggregator in isolation.
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Status:  m.status,
		Message: "mock",
		Latency: time.Millisecond,
	}
}

func TestAggregator(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"redis", StatusHealthy},
			&mockChecker{"tcp", StatusHealthy},
		)

		status := agg.OverallStatus(context.Background())
		if status != StatusHealthy {
			t.Errorf("expected StatusHealthy, got: %v", status)
		}

		if !agg.Ready(context.Background()) {
			t.Error("should be Ready when everything is healthy")
		}
	})

	t.Run("one degraded", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"redis", StatusHealthy},
			&mockChecker{"tcp", StatusDegraded},
		)

		status := agg.OverallStatus(context.Background())
		if status != StatusDegraded {
			t.Errorf("expected StatusDegraded, got: %v", status)
		}

		// degraded is still Ready
		if !agg.Ready(context.Background()) {
			t.Error("should still be Ready when degraded")
		}
	})

	t.Run("one unhealthy", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"redis", StatusHealthy},
			&mockChecker{"tcp", StatusUnhealthy},
		)

		status := agg.OverallStatus(context.Background())
		if status != StatusUnhealthy {
			t.Errorf("expected StatusUnhealthy, got: %v", status)
		}

		// unhealthy is not Ready
		if agg.Ready(context.Background()) {
			t.Error("should not be Ready when unhealthy")
		}
	})

	t.Run("CheckAll returns one result per checker", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"check1", StatusHealthy},
			&mockChecker{"check2", StatusHealthy},
			&mockChecker{"check3", StatusHealthy},
		)

		results := agg.CheckAll(context.Background())
		if len(results) != 3 {
			t.Errorf("expected 3 results, got: %d", len(results))
		}

		for name, result := range results {
			if result.Status != StatusHealthy {
				t.Errorf("%s: expected StatusHealthy, got: %v", name, result.Status)
			}
		}
	})

	t.Run("checkers can be added dynamically", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"initial", StatusHealthy},
		)

		agg.AddChecker(&mockChecker{"added", StatusHealthy})

		results := agg.CheckAll(context.Background())
		if len(results) != 2 {
			t.Errorf("expected 2 results, got: %d", len(results))
		}
	})

	t.Run("Alive always returns true", func(t *testing.T) {
		agg := NewAggregator()

		if !agg.Alive() {
			t.Error("Alive should always return true")
		}
	})
}
