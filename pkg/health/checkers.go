package health

import (
	"context"
	"time"
)

// Checkable is implemented by components that can report their own health,
// such as resilience.CircuitBreaker.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker turns a Checkable into a Checker.
type AdapterChecker struct {
	name          string
	adapter       Checkable
	timeout       time.Duration
	failureStatus Status
}

// NewAdapterChecker creates a checker that reports unhealthy when the
// component's HealthCheck fails. A zero timeout defaults to 5s.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &AdapterChecker{
		name:          name,
		adapter:       adapter,
		timeout:       timeout,
		failureStatus: StatusUnhealthy,
	}
}

// NewTelemetryChecker creates a checker for a telemetry sink. A failing sink
// degrades the service instead of marking it unhealthy.
func NewTelemetryChecker(name string, sink Checkable) *AdapterChecker {
	c := NewAdapterChecker(name, sink, time.Second)
	c.failureStatus = StatusDegraded
	return c
}

// Check performs the health check on the adapter
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	duration := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:      c.name,
			Status:    c.failureStatus,
			Error:     err.Error(),
			Timestamp: time.Now(),
			Duration:  duration,
		}
	}

	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// PingChecker always reports healthy. It backs the liveness check.
type PingChecker struct {
	name string
}

// NewPingChecker creates a new ping checker
func NewPingChecker(name string) *PingChecker {
	return &PingChecker{name: name}
}

// Check always returns healthy status
func (c *PingChecker) Check(context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "Service is alive",
		Timestamp: time.Now(),
	}
}

// Name returns the name of the health check
func (c *PingChecker) Name() string {
	return c.name
}
