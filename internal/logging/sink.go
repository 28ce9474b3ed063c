// pattern: Imperative Shell

package logging

import (
	"encoding/json"
	"sync"
	"time"
)

// RecordingSink implements zapcore.WriteSyncer and keeps every parsed JSON
// entry in memory. TestLogManager uses it so tests can assert on the notices
// and warnings a component emitted.
type RecordingSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Write implements io.Writer. Lines that are not valid JSON are dropped.
func (s *RecordingSink) Write(p []byte) (int, error) {
	entry, err := parseEntry(p)
	if err != nil {
		return len(p), nil
	}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (s *RecordingSink) Sync() error {
	return nil
}

// Entries returns a snapshot of the recorded entries in write order.
func (s *RecordingSink) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Reset discards recorded entries.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// parseEntry converts one JSON line from zap into a LogEntry.
func parseEntry(data []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Fields:    make(map[string]any),
	}

	if msg, ok := raw["msg"].(string); ok {
		entry.Message = msg
		delete(raw, "msg")
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = ParseLevel(level)
		delete(raw, "level")
	}
	if logger, ok := raw["logger"].(string); ok {
		entry.Scope = logger
		delete(raw, "logger")
	}
	if ts, ok := raw["ts"].(string); ok {
		if parsed, err := time.Parse("2006-01-02T15:04:05.000Z0700", ts); err == nil {
			entry.Timestamp = parsed
		}
		delete(raw, "ts")
	}
	delete(raw, "caller")
	delete(raw, "stacktrace")

	for k, v := range raw {
		entry.Fields[k] = v
	}
	return entry, nil
}
