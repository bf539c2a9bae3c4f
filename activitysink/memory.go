package activitysink

import (
	"context"
	"sync"

	auth "github.com/txnjournal/go-txn-auth"
)

// Memory keeps events in order. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

var _ auth.ActivitySink = (*Memory)(nil)

// Record implements auth.ActivitySink.
func (m *Memory) Record(_ context.Context, event auth.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []auth.ActivityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.ActivityEvent(nil), m.events...)
}

// OfType returns recorded events of type t.
func (m *Memory) OfType(t auth.ActivityEventType) []auth.ActivityEvent {
	var out []auth.ActivityEvent
	for _, e := range m.Events() {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}
