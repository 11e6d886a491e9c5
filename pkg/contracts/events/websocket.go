// Package events defines the push protocol served on /ws. Every frame
// is a JSON Message envelope whose Data field carries one of the payload
// shapes below, keyed by Type. The hub sources its wire strings from
// these constants, so the protocol is spelled out in one place for both
// the server and any consumer decoding the stream.
package events

import (
	"encoding/json"
	"time"
)

// Wire values for Message.Type. Declared untyped so internal packages
// can alias them without casts.
const (
	// TypeConnection greets a client right after registration.
	TypeConnection = "connection"

	// TypeProgress reports step progress while a pipeline run is active.
	TypeProgress = "progress"

	// TypeError reports a processing failure together with a recovery hint.
	TypeError = "error"

	// TypeDataUpdate tells clients that server-side data changed and
	// names the components that should refresh.
	TypeDataUpdate = "data_update"

	// TypeOperationSnapshot carries the full state of a single operation.
	// Snapshots are self-describing and omit the subtype/action fields.
	TypeOperationSnapshot = "operation:snapshot"

	// SubtypeAll and ActionRefresh fill the envelope for data updates.
	SubtypeAll    = "all"
	ActionRefresh = "refresh"
)

// Message is the envelope for every frame on the socket. Timestamp is
// RFC 3339. TraceID links a frame back to the request that caused it.
type Message struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	Action    string          `json:"action,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
	TraceID   string          `json:"trace_id,omitempty"`
}

// ConnectionData is the payload of a connection message.
type ConnectionData struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
}

// ProgressData is the payload of a progress message. Progress is a
// percentage in the 0-100 range.
type ProgressData struct {
	Step     string `json:"step"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// ErrorData is the payload of an error message. Recoverable tells the
// client whether retrying the operation can succeed.
type ErrorData struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	Step        string `json:"step,omitempty"`
	Recoverable bool   `json:"recoverable"`
	Hint        string `json:"hint,omitempty"`
}

// RefreshData is the payload of a data_update message.
type RefreshData struct {
	Source     string   `json:"source"`
	Components []string `json:"components"`
}

// OperationSnapshot is the payload of an operation:snapshot message. It
// mirrors the broadcaster's snapshot so consumers can decode the whole
// operation state from a single frame.
type OperationSnapshot struct {
	OperationID string         `json:"operation_id"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot is one step inside an operation snapshot.
type StepSnapshot struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
