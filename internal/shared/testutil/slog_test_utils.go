package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is one captured log entry. Attrs includes attributes bound
// with Logger.With as well as per-call attributes.
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// logBuffer is the record storage shared by a handler and every child
// handler derived from it via WithAttrs/WithGroup.
type logBuffer struct {
	mu      sync.Mutex
	records []LogRecord
}

func (b *logBuffer) append(r LogRecord) {
	b.mu.Lock()
	b.records = append(b.records, r)
	b.mu.Unlock()
}

func (b *logBuffer) snapshot() []LogRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogRecord, len(b.records))
	copy(out, b.records)
	return out
}

// BufferedSlogHandler is a slog.Handler that keeps records in memory so
// tests can assert on what a component logged. All levels are captured
// regardless of the logger's configured level.
type BufferedSlogHandler struct {
	buf   *logBuffer
	bound []slog.Attr
	group string
	t     *testing.T
}

// NewBufferedSlogHandler returns an empty handler. Records are also
// echoed through t.Logf so a failing test shows the log stream.
func NewBufferedSlogHandler(t *testing.T) *BufferedSlogHandler {
	return &BufferedSlogHandler{buf: &logBuffer{}, t: t}
}

// NewTestLogger returns a logger backed by a fresh buffered handler,
// together with the handler for assertions.
func NewTestLogger(t *testing.T) (*slog.Logger, *BufferedSlogHandler) {
	h := NewBufferedSlogHandler(t)
	return slog.New(h), h
}

func (h *BufferedSlogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *BufferedSlogHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.bound))
	for _, a := range h.bound {
		attrs[h.qualify(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Any()
		return true
	})

	h.buf.append(LogRecord{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})

	if h.t != nil {
		h.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

// WithAttrs returns a handler sharing the same record buffer with the
// extra attributes bound, so Logger.With stays visible to assertions.
func (h *BufferedSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferedSlogHandler{
		buf:   h.buf,
		bound: append(append([]slog.Attr{}, h.bound...), attrs...),
		group: h.group,
		t:     h.t,
	}
}

// WithGroup returns a handler that prefixes subsequent attribute keys
// with the group name, matching the flat key form "group.key".
func (h *BufferedSlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &BufferedSlogHandler{
		buf:   h.buf,
		bound: h.bound,
		group: h.qualify(name),
		t:     h.t,
	}
}

func (h *BufferedSlogHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// GetRecords returns a copy of every captured record in log order.
func (h *BufferedSlogHandler) GetRecords() []LogRecord {
	return h.buf.snapshot()
}

// GetRecordsByLevel returns the captured records at exactly the given level.
func (h *BufferedSlogHandler) GetRecordsByLevel(level slog.Level) []LogRecord {
	var out []LogRecord
	for _, r := range h.GetRecords() {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// ContainsMessage reports whether any record's message contains the substring.
func (h *BufferedSlogHandler) ContainsMessage(message string) bool {
	for _, r := range h.GetRecords() {
		if strings.Contains(r.Message, message) {
			return true
		}
	}
	return false
}

// ContainsAttr reports whether any record carries the attribute.
func (h *BufferedSlogHandler) ContainsAttr(key string, value any) bool {
	for _, r := range h.GetRecords() {
		if v, ok := r.Attrs[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear discards all captured records.
func (h *BufferedSlogHandler) Clear() {
	h.buf.mu.Lock()
	h.buf.records = h.buf.records[:0]
	h.buf.mu.Unlock()
}

// Count returns the number of captured records.
func (h *BufferedSlogHandler) Count() int {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	return len(h.buf.records)
}

// AssertLogContains fails the test when no record at the given level
// contains the message substring.
func AssertLogContains(t *testing.T, handler *BufferedSlogHandler, level slog.Level, message string) {
	t.Helper()
	for _, r := range handler.GetRecordsByLevel(level) {
		if strings.Contains(r.Message, message) {
			return
		}
	}
	t.Errorf("no %s log containing %q; captured at that level:", level, message)
	for _, r := range handler.GetRecordsByLevel(level) {
		t.Logf("  - %s", r.Message)
	}
}

// AssertLogAttr fails the test when no record carries the attribute.
func AssertLogAttr(t *testing.T, handler *BufferedSlogHandler, key string, expectedValue any) {
	t.Helper()
	if handler.ContainsAttr(key, expectedValue) {
		return
	}
	t.Errorf("no log record with %s=%v; captured:", key, expectedValue)
	for _, r := range handler.GetRecords() {
		t.Logf("  - %s: %v", r.Message, r.Attrs)
	}
}

// AssertNoErrors fails the test when any error-level record was captured.
func AssertNoErrors(t *testing.T, handler *BufferedSlogHandler) {
	t.Helper()
	for _, r := range handler.GetRecordsByLevel(slog.LevelError) {
		t.Errorf("unexpected error log: %s %v", r.Message, r.Attrs)
	}
}
