package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignedIn          ActivityEventType = "auth.signed_in"
	ActivityEventSignedOut         ActivityEventType = "auth.signed_out"
	ActivityEventSignInFailed      ActivityEventType = "auth.sign_in_failed"
	ActivityEventProfileCreated    ActivityEventType = "profile.created"
	ActivityEventUserApproved      ActivityEventType = "user.approved"
	ActivityEventUserRejected      ActivityEventType = "user.rejected"
	ActivityEventUserRoleChanged   ActivityEventType = "user.role.changed"
	ActivityEventUserStatusChanged ActivityEventType = "user.status.changed"
)

// ActorRef identifies who triggered an action.
type ActorRef struct {
	ID   string `json:"id"`
	Role Role   `json:"role,omitempty"`
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType `json:"event_type"`
	Actor      ActorRef          `json:"actor"`
	UserID     string            `json:"user_id"`
	FromStatus AccountStatus     `json:"from_status,omitempty"`
	ToStatus   AccountStatus     `json:"to_status,omitempty"`
	FromRole   Role              `json:"from_role,omitempty"`
	ToRole     Role              `json:"to_role,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink, returning the first error.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is best effort, failures are logged.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "user_id", event.UserID, "error", err)
	}
}
