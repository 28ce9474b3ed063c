// pattern: Imperative Shell

package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NopLogger returns a logger that discards all output.
// Use in tests or when logging is not configured.
func NopLogger() *ScopedLogger {
	return &ScopedLogger{}
}

// TestLogManager records every entry in memory at debug level.
type TestLogManager struct {
	sink    *RecordingSink
	baseZap *zap.Logger
	loggers map[string]*ScopedLogger
	mu      sync.RWMutex
}

// NewTestLogManager creates a LoggerProvider for tests.
func NewTestLogManager() *TestLogManager {
	sink := NewRecordingSink()
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(jsonEncoderConfig()),
		zapcore.AddSync(sink),
		zapcore.DebugLevel,
	)
	return &TestLogManager{
		sink:    sink,
		baseZap: zap.New(core),
		loggers: make(map[string]*ScopedLogger),
	}
}

// For returns a scoped logger for the given scope name.
func (m *TestLogManager) For(scope string) *ScopedLogger {
	return cachedLogger(&m.mu, m.loggers, scope, func() *ScopedLogger {
		return newScopedLogger(m.baseZap, scope)
	})
}

// Entries returns everything logged so far.
func (m *TestLogManager) Entries() []LogEntry {
	return m.sink.Entries()
}

// Close is a no-op; recorded entries stay readable.
func (m *TestLogManager) Close() error {
	return nil
}

// Reset discards recorded entries.
func (m *TestLogManager) Reset() {
	m.sink.Reset()
}
