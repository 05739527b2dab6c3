package audit

import (
	"context"

	"github.com/campuskit/rollcall/pkg/observability"
)

// Logger is the interface audit producers write through
type Logger interface {
	// Log persists an audit event. Implementations set event.ID on success.
	Log(ctx context.Context, event *Event) error
}

// NopLogger discards all events
type NopLogger struct{}

// NewNopLogger creates a logger that discards all events
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Log discards the event
func (l *NopLogger) Log(_ context.Context, _ *Event) error {
	return nil
}

// Record logs an event and swallows the error, reporting it through the
// application logger. Audit is advisory; the producing operation must not
// fail because the audit insert did.
func Record(ctx context.Context, auditLogger Logger, event *Event) {
	if auditLogger == nil {
		return
	}
	if err := auditLogger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithField("event_type", string(event.EventType)).
			WithError(err).
			Warn("failed to record audit event")
	}
}
