// Package activitymap converts auth activity events into the record shape
// published on the activity topic.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/txnjournal/go-txn-auth"
)

const (
	DefaultChannel = "txn-auth"
	// SystemActor stands in for admin events that carry no acting identity.
	SystemActor = "system"
)

// Category groups event types by the surface that produced them.
type Category string

const (
	CategorySession Category = "session"
	CategoryProfile Category = "profile"
	CategoryAdmin   Category = "admin"
)

// Change is the before and after value of a status or role.
type Change struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

// Record is one published activity event.
type Record struct {
	Channel    string         `json:"channel"`
	Category   Category       `json:"category"`
	Verb       string         `json:"verb"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role,omitempty"`
	SubjectID  string         `json:"subject_id"`
	Status     *Change        `json:"status,omitempty"`
	Role       *Change        `json:"role,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// PartitionKey is the affected account, so one account's events stay ordered.
func (r Record) PartitionKey() []byte {
	return []byte(r.SubjectID)
}

// Option adjusts a record after it is built from the event.
type Option func(*Record)

// WithChannel tags records with channel. Blank keeps DefaultChannel.
func WithChannel(channel string) Option {
	return func(r *Record) {
		if channel = strings.TrimSpace(channel); channel != "" {
			r.Channel = channel
		}
	}
}

// FromEvent builds the record for event. Session and profile events are
// acted by their own subject when no actor is set.
func FromEvent(event auth.ActivityEvent, opts ...Option) Record {
	r := Record{
		Channel:    DefaultChannel,
		Category:   CategoryOf(event.EventType),
		Verb:       string(event.EventType),
		ActorID:    strings.TrimSpace(event.Actor.ID),
		ActorRole:  string(event.Actor.Role),
		SubjectID:  strings.TrimSpace(event.UserID),
		OccurredAt: event.OccurredAt.UTC(),
	}
	if r.ActorID == "" && r.Category != CategoryAdmin {
		r.ActorID = r.SubjectID
	}
	if r.ActorID == "" {
		r.ActorID = SystemActor
	}
	if event.OccurredAt.IsZero() {
		r.OccurredAt = time.Now().UTC()
	}

	if event.ToStatus != "" {
		r.Status = &Change{From: string(event.FromStatus), To: string(event.ToStatus)}
	}
	if event.ToRole != "" {
		r.Role = &Change{From: string(event.FromRole), To: string(event.ToRole)}
	}

	for key, value := range event.Metadata {
		if key == "reason" {
			if reason, ok := value.(string); ok {
				r.Reason = reason
				continue
			}
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, len(event.Metadata))
		}
		r.Metadata[key] = value
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&r)
		}
	}
	return r
}

// CategoryOf maps an event type to its category by prefix.
func CategoryOf(t auth.ActivityEventType) Category {
	switch {
	case strings.HasPrefix(string(t), "auth."):
		return CategorySession
	case strings.HasPrefix(string(t), "profile."):
		return CategoryProfile
	default:
		return CategoryAdmin
	}
}
