package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemapipe/pkg/contracts/events"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func registerTestClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := NewClientWithConnection(hub, NewMockConnection(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Register(client)

	// The hub greets every new client before anything else is delivered.
	welcome := receiveMessage(t, client)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(welcome, &msg))
	require.Equal(t, TypeConnection, msg["type"])

	return client
}

func receiveMessage(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case data, ok := <-client.send:
		require.True(t, ok, "send channel closed")
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHubRegisterAndCount(t *testing.T) {
	hub := newTestHub(t)

	registerTestClient(t, hub)
	registerTestClient(t, hub)

	assert.Equal(t, 2, hub.ClientCount())
}

func TestBroadcastUpdateSnapshotShape(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	hub.BroadcastUpdate(TypeOperationSnapshot, "op-1", "update", map[string]interface{}{
		"operation_id": "op-1",
		"status":       "running",
	})

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(receiveMessage(t, client), &msg))

	assert.Equal(t, TypeOperationSnapshot, msg["type"])
	assert.NotEmpty(t, msg["timestamp"])

	// Snapshots are self-describing and omit the legacy envelope.
	assert.NotContains(t, msg, "subtype")
	assert.NotContains(t, msg, "action")

	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "op-1", data["operation_id"])
}

func TestBroadcastUpdateKeepsEnvelopeForOtherEvents(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	hub.BroadcastRefresh("templates", []string{"templates"})

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(receiveMessage(t, client), &msg))

	assert.Equal(t, TypeDataUpdate, msg["type"])
	assert.Equal(t, SubtypeAll, msg["subtype"])
	assert.Equal(t, ActionRefresh, msg["action"])

	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "templates", data["source"])
}

func TestBroadcastProgress(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	hub.BroadcastProgress("transform", 60, "reshaping rows")

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(receiveMessage(t, client), &msg))

	assert.Equal(t, TypeProgress, msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "transform", data["step"])
	assert.Equal(t, float64(60), data["progress"])
}

func TestBroadcastErrorIncludesHint(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	hub.BroadcastError("ERR_CONTRACT_VIOLATIONS", "12 rows failed validation", "missing customer_id", "validate", true)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(receiveMessage(t, client), &msg))

	assert.Equal(t, TypeError, msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "ERR_CONTRACT_VIOLATIONS", data["code"])
	assert.Equal(t, true, data["recoverable"])
	assert.Equal(t, ErrorRecoveryHints["ERR_CONTRACT_VIOLATIONS"], data["hint"])
}

func TestBroadcastErrorUnknownCodeGetsDefaultHint(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	hub.BroadcastError("ERR_MYSTERY", "something odd", "", "ingest", false)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(receiveMessage(t, client), &msg))

	data := msg["data"].(map[string]interface{})
	assert.Equal(t, ErrorRecoveryHints["default"], data["hint"])
}

func TestBroadcastErrorDecodesThroughContract(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	hub.BroadcastError("ERR_HEADER_RESOLUTION", "no plausible header row", "all scanned rows were numeric", "resolve", true)

	var msg events.Message
	require.NoError(t, json.Unmarshal(receiveMessage(t, client), &msg))

	assert.Equal(t, events.TypeError, msg.Type)
	_, err := time.Parse(time.RFC3339, msg.Timestamp)
	assert.NoError(t, err, "timestamp should be RFC 3339")

	var data events.ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "ERR_HEADER_RESOLUTION", data.Code)
	assert.Equal(t, "no plausible header row", data.Message)
	assert.Equal(t, "resolve", data.Step)
	assert.True(t, data.Recoverable)
	assert.Equal(t, ErrorRecoveryHints["ERR_HEADER_RESOLUTION"], data.Hint)
}

func TestSlowClientIsDisconnected(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	// Fill the client's send buffer so the next broadcast cannot be queued.
	for i := 0; i < cap(client.send); i++ {
		client.send <- []byte("{}")
	}

	hub.BroadcastProgress("ingest", 10, "reading sheets")

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Start()

	client := registerTestClient(t, hub)
	hub.Stop()

	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "send channel should be closed after Stop")
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}

	// A second Stop is a no-op.
	hub.Stop()
}

func TestGetHubMetrics(t *testing.T) {
	hub := newTestHub(t)
	client := registerTestClient(t, hub)

	hub.BroadcastProgress("map", 50, "matching headers")
	receiveMessage(t, client)

	stats := hub.GetHubMetrics()
	assert.Equal(t, 1, stats["active_clients"])
	assert.Equal(t, int64(1), stats["total_connections"])
}

func TestClientUnregisterOnReadError(t *testing.T) {
	hub := newTestHub(t)

	conn := NewMockConnection()
	client := NewClientWithConnection(hub, conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Register(client)
	receiveMessage(t, client)
	require.Equal(t, 1, hub.ClientCount())

	// ReadMessage returns an error once the scripted messages run out,
	// which ends the read pump and unregisters the client.
	go client.ReadPump()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.Closed
	}, 2*time.Second, 10*time.Millisecond)
}
