package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/jobsignal/pkg/observability/logger"
)

// MockLogger is a test logger that captures log entries for assertion in tests.
// Child loggers created by With and WithContext write into the same buffer.
type MockLogger struct {
	store  *logStore
	fields []any
}

// LogEntry represents a single log entry captured by MockLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

type logStore struct {
	mu   sync.Mutex
	logs []LogEntry
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{store: &logStore{}}
}

// Debug records a debug-level log entry for testing assertions.
func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }

// Info records an info-level log entry for testing assertions.
func (m *MockLogger) Info(msg string, args ...any) { m.record("info", msg, args) }

// Warn records a warn-level log entry for testing assertions.
func (m *MockLogger) Warn(msg string, args ...any) { m.record("warn", msg, args) }

// Error records an error-level log entry for testing assertions.
func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns a child logger carrying args.
func (m *MockLogger) With(args ...any) logger.Logger {
	return m.child(args)
}

// WithContext returns a child logger carrying the fields attached to ctx.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	return m.child(logger.FieldsFromContext(ctx))
}

// Logs returns a snapshot of every captured entry.
func (m *MockLogger) Logs() []LogEntry {
	m.ensureStore()
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := make([]LogEntry, len(m.store.logs))
	copy(out, m.store.logs)
	return out
}

// Find returns the captured entries with the given level and message.
func (m *MockLogger) Find(level, msg string) []LogEntry {
	var out []LogEntry
	for _, entry := range m.Logs() {
		if entry.Level == level && entry.Msg == msg {
			out = append(out, entry)
		}
	}
	return out
}

// Count returns how many entries were captured at level.
func (m *MockLogger) Count(level string) int {
	n := 0
	for _, entry := range m.Logs() {
		if entry.Level == level {
			n++
		}
	}
	return n
}

func (m *MockLogger) child(args []any) *MockLogger {
	m.ensureStore()
	fields := make([]any, 0, len(m.fields)+len(args))
	fields = append(fields, m.fields...)
	fields = append(fields, args...)
	return &MockLogger{store: m.store, fields: fields}
}

func (m *MockLogger) record(level, msg string, args []any) {
	m.ensureStore()
	all := make([]any, 0, len(m.fields)+len(args))
	all = append(all, m.fields...)
	all = append(all, args...)
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.logs = append(m.store.logs, LogEntry{Level: level, Msg: msg, Fields: argsToMap(all)})
}

func (m *MockLogger) ensureStore() {
	if m.store == nil {
		m.store = &logStore{}
	}
}

func argsToMap(args []any) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
