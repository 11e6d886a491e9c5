package operations

// WebSocketHub broadcasts operation updates to connected clients
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// ProgressReporter reports step progress during execution
type ProgressReporter interface {
	ReportProgress(progress int, message string) error
}

// StepOptions carries optional dependencies shared by all steps
type StepOptions struct {
	WebSocketManager  WebSocketHub
	StatusBroadcaster *StatusBroadcaster
}
