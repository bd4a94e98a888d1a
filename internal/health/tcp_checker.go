package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/gt06-gateway/internal/tcpserver"
)

// TCPChecker reports the health of the device-facing TCP listener —
// connection count against its configured ceiling, and the circuit
// breaker guarding the registry's store (spec §5 "Scheduling model").
type TCPChecker struct {
	server *tcpserver.Server
}

// NewTCPChecker constructs a checker bound to the gateway's TCP
// server.
func NewTCPChecker(server *tcpserver.Server) *TCPChecker {
	return &TCPChecker{server: server}
}

// Name identifies this checker in the aggregated report.
func (c *TCPChecker) Name() string {
	return "device_tcp"
}

// Check grades connection-count pressure against the configured
// ceiling and surfaces the rate limiter / circuit breaker stats.
func (c *TCPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	activeConns := c.server.ActiveConnections()
	maxConns := c.server.MaxConnections()

	if maxConns == 0 {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "no limiting enabled",
			Details: map[string]interface{}{
				"active_connections": activeConns,
			},
			Latency: time.Since(start),
		}
	}

	utilization := float64(activeConns) / float64(maxConns)

	status := StatusHealthy
	message := "ok"

	if utilization > 0.8 {
		status = StatusDegraded
		message = "high connection usage"
	}

	if utilization > 0.95 {
		status = StatusUnhealthy
		message = "connection limit near exhausted"
	}

	details := map[string]interface{}{
		"active_connections": activeConns,
		"max_connections":    maxConns,
		"utilization":        fmt.Sprintf("%.1f%%", utilization*100),
	}

	if limiterStats := c.server.GetLimiterStats(); limiterStats != nil {
		details["rejected_total"] = limiterStats.RejectedTotal
	}

	if breakerStats := c.server.GetCircuitBreakerStats(); breakerStats != nil {
		details["circuit_breaker_state"] = breakerStats.State
		details["circuit_breaker_failures"] = breakerStats.FailureCount
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
