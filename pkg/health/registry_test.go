package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockChecker is a mock implementation of Checker for testing
type mockChecker struct {
	name   string
	result CheckResult
}

func (m *mockChecker) Check(context.Context) CheckResult {
	return m.result
}

func (m *mockChecker) Name() string {
	return m.name
}

func staticChecker(name string, status Status) *mockChecker {
	return &mockChecker{name: name, result: CheckResult{Name: name, Status: status}}
}

func TestRegistry_RegisterAndList(t *testing.T) {
	registry := NewRegistry()
	if len(registry.List()) != 0 {
		t.Fatalf("new registry should be empty, got %v", registry.List())
	}

	registry.Register(staticChecker("b", StatusHealthy))
	registry.Register(staticChecker("a", StatusHealthy))
	registry.Register(staticChecker("a", StatusDegraded))

	names := registry.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected [a b], got %v", names)
	}

	registry.Unregister("a")
	if names := registry.List(); len(names) != 1 || names[0] != "b" {
		t.Fatalf("expected [b] after unregister, got %v", names)
	}
}

func TestRegistry_CheckAggregation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
		healthy  bool
	}{
		{"empty registry", nil, StatusHealthy, true},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, true},
		{"degraded wins over healthy", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, true},
		{"unhealthy wins over degraded", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			for i, status := range tt.statuses {
				registry.Register(staticChecker(string(rune('a'+i)), status))
			}

			result := registry.Check(context.Background())
			if result.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, result.Status)
			}
			if result.IsHealthy() != tt.healthy {
				t.Errorf("expected IsHealthy=%v", tt.healthy)
			}
			if len(result.Checks) != len(tt.statuses) {
				t.Errorf("expected %d results, got %d", len(tt.statuses), len(result.Checks))
			}
		})
	}
}

func TestRegistry_CheckResultsSortedByName(t *testing.T) {
	registry := NewRegistry()
	registry.Register(staticChecker("reporter", StatusHealthy))
	registry.Register(staticChecker("alive", StatusHealthy))

	result := registry.Check(context.Background())
	if result.Checks[0].Name != "alive" || result.Checks[1].Name != "reporter" {
		t.Fatalf("unexpected order: %+v", result.Checks)
	}
}

func TestRegistry_CheckOne(t *testing.T) {
	registry := NewRegistry()
	registry.Register(staticChecker("alive", StatusHealthy))

	result, err := registry.CheckOne(context.Background(), "alive")
	if err != nil || result.Status != StatusHealthy {
		t.Fatalf("unexpected result %+v, err %v", result, err)
	}

	if _, err := registry.CheckOne(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown check")
	}
}

type checkable struct {
	err   error
	delay time.Duration
}

func (c checkable) HealthCheck(ctx context.Context) error {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

func TestAdapterChecker(t *testing.T) {
	ok := NewAdapterChecker("sink", checkable{}, 0).Check(context.Background())
	if ok.Status != StatusHealthy || ok.Message != "OK" {
		t.Errorf("expected healthy result, got %+v", ok)
	}

	failed := NewAdapterChecker("sink", checkable{err: errors.New("down")}, 0).Check(context.Background())
	if failed.Status != StatusUnhealthy || failed.Error != "down" {
		t.Errorf("expected unhealthy result, got %+v", failed)
	}
}

func TestAdapterChecker_Timeout(t *testing.T) {
	result := NewAdapterChecker("slow", checkable{delay: time.Second}, 10*time.Millisecond).Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected timeout to be unhealthy, got %+v", result)
	}
}

func TestTelemetryChecker_Degrades(t *testing.T) {
	checker := NewTelemetryChecker("transaction_reporter", checkable{err: errors.New("circuit breaker is open")})
	result := checker.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", result.Status)
	}
	if checker.Name() != "transaction_reporter" {
		t.Fatalf("unexpected name %s", checker.Name())
	}

	registry := NewRegistry()
	registry.Register(NewPingChecker("alive"))
	registry.Register(checker)
	if !registry.Check(context.Background()).IsHealthy() {
		t.Fatal("degraded telemetry should not make the service unready")
	}
}
