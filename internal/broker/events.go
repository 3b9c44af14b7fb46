package broker

import "gateport/internal/session"

type EventType string

const (
	EventCreated  EventType = "session_created"
	EventApproved EventType = "session_approved"
	EventRevoked  EventType = "session_revoked"
	EventExpired  EventType = "session_expired"
	EventPruned   EventType = "session_pruned"
)

// Event describes one session transition, carrying the snapshot taken right
// after it.
type Event struct {
	Type    EventType        `json:"type"`
	Session session.Snapshot `json:"session"`
}

// OnEvent registers the transition callback. Call it before Start. The
// callback runs on broker goroutines and must not call back into the broker;
// hand the event off to a channel if more work is needed.
func (b *Broker) OnEvent(fn func(Event)) {
	b.onEvent = fn
}

func (b *Broker) emit(t EventType, snap session.Snapshot) {
	if b.onEvent != nil {
		b.onEvent(Event{Type: t, Session: snap})
	}
}
