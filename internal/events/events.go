// Package events publishes match lifecycle notifications for other services
// (dashboards, matchmaking analytics) to consume.
package events

import "time"

// Kind names a lifecycle transition. It doubles as the subject suffix.
type Kind string

const (
	KindMatchCreated Kind = "match.created"
	KindMatchStarted Kind = "match.started"
	KindMatchEnded   Kind = "match.ended"
)

// Event is one lifecycle notification.
type Event struct {
	Kind    Kind   `json:"kind"`
	MatchID string `json:"match_id"`
	Host    string `json:"host,omitempty"`
	Guest   string `json:"guest,omitempty"`
	// UserID is the departing player for match.ended.
	UserID string `json:"user_id,omitempty"`
	// Reason is set for match.ended: "departure" or "shutdown".
	Reason string    `json:"reason,omitempty"`
	Server string    `json:"server,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher accepts events without blocking the caller. Delivery failures are
// the publisher's concern and are never reported back.
type Publisher interface {
	Publish(e Event)
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(Event) {}
