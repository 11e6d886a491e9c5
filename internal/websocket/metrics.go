package websocket

import (
	"sync"
	"time"
)

// connectionWindow bounds the rolling average of connection lifetimes.
const connectionWindow = 100

// Metrics tracks in-process WebSocket counters. The OpenTelemetry
// instruments in otel_metrics.go feed the exporter; this struct feeds
// the stats endpoint, which must work even when telemetry is disabled.
type Metrics struct {
	mu sync.RWMutex

	TotalConnections  int64
	ActiveConnections int64
	FailedConnections int64
	MaxConcurrent     int64
	AvgConnectionTime time.Duration

	MessagesSent     int64
	MessagesReceived int64
	BytesSent        int64
	BytesReceived    int64

	AvgQueueDepth   int64
	MaxQueueDepth   int64
	DroppedMessages int64

	ErrorsByType map[string]int64

	LastReset       time.Time
	connectionTimes []time.Duration
}

// NewMetrics creates a zeroed metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		ErrorsByType:    make(map[string]int64),
		LastReset:       time.Now(),
		connectionTimes: make([]time.Duration, 0, connectionWindow),
	}
}

// RecordConnection counts a successful upgrade.
func (m *Metrics) RecordConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections++
	m.ActiveConnections++
	if m.ActiveConnections > m.MaxConcurrent {
		m.MaxConcurrent = m.ActiveConnections
	}
}

// RecordFailedConnection counts an upgrade that never produced a client.
func (m *Metrics) RecordFailedConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailedConnections++
}

// RecordDisconnection counts a disconnect and folds the connection
// lifetime into a rolling average over the last connectionWindow
// connections.
func (m *Metrics) RecordDisconnection(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ActiveConnections--

	m.connectionTimes = append(m.connectionTimes, duration)
	if len(m.connectionTimes) > connectionWindow {
		m.connectionTimes = m.connectionTimes[1:]
	}
	var total time.Duration
	for _, d := range m.connectionTimes {
		total += d
	}
	m.AvgConnectionTime = total / time.Duration(len(m.connectionTimes))
}

// RecordMessageSent counts an outbound frame.
func (m *Metrics) RecordMessageSent(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MessagesSent++
	m.BytesSent += size
}

// RecordMessageReceived counts an inbound frame.
func (m *Metrics) RecordMessageReceived(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MessagesReceived++
	m.BytesReceived += size
}

// RecordError counts an error under the given type ("read", "write",
// "upgrade", ...).
func (m *Metrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ErrorsByType[errorType]++
}

// RecordQueueDepth folds the current broadcast queue depth into an
// exponentially weighted average and tracks the high-water mark.
func (m *Metrics) RecordQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if depth > m.MaxQueueDepth {
		m.MaxQueueDepth = depth
	}
	if m.AvgQueueDepth == 0 {
		m.AvgQueueDepth = depth
	} else {
		m.AvgQueueDepth = (m.AvgQueueDepth*9 + depth) / 10
	}
}

// RecordDroppedMessage counts a broadcast dropped on a full client queue.
func (m *Metrics) RecordDroppedMessage() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DroppedMessages++
}

// GetSnapshot returns the current counters grouped for the stats
// endpoint.
func (m *Metrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errorCounts := make(map[string]int64, len(m.ErrorsByType))
	for k, v := range m.ErrorsByType {
		errorCounts[k] = v
	}

	var avgMessageSize int64
	if total := m.MessagesSent + m.MessagesReceived; total > 0 {
		avgMessageSize = (m.BytesSent + m.BytesReceived) / total
	}

	return map[string]interface{}{
		"connections": map[string]interface{}{
			"total":           m.TotalConnections,
			"active":          m.ActiveConnections,
			"failed":          m.FailedConnections,
			"max_concurrent":  m.MaxConcurrent,
			"avg_duration_ms": m.AvgConnectionTime.Milliseconds(),
		},
		"messages": map[string]interface{}{
			"sent":           m.MessagesSent,
			"received":       m.MessagesReceived,
			"bytes_sent":     m.BytesSent,
			"bytes_received": m.BytesReceived,
			"avg_size":       avgMessageSize,
			"dropped":        m.DroppedMessages,
		},
		"queue": map[string]interface{}{
			"avg_depth": m.AvgQueueDepth,
			"max_depth": m.MaxQueueDepth,
		},
		"errors":         errorCounts,
		"since_reset_ms": time.Since(m.LastReset).Milliseconds(),
	}
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections = 0
	m.ActiveConnections = 0
	m.FailedConnections = 0
	m.MaxConcurrent = 0
	m.AvgConnectionTime = 0
	m.MessagesSent = 0
	m.MessagesReceived = 0
	m.BytesSent = 0
	m.BytesReceived = 0
	m.AvgQueueDepth = 0
	m.MaxQueueDepth = 0
	m.DroppedMessages = 0
	m.ErrorsByType = make(map[string]int64)
	m.LastReset = time.Now()
	m.connectionTimes = m.connectionTimes[:0]
}

var globalMetrics = NewMetrics()

// GetMetrics returns the process-wide metrics instance shared by the hub
// and its clients.
func GetMetrics() *Metrics {
	return globalMetrics
}
