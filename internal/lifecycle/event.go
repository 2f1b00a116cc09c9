// Package lifecycle carries application lifecycle transitions to the
// components that refresh on them.
package lifecycle

import "time"

type Kind int

const (
	// Foreground is sent when the application becomes active.
	Foreground Kind = iota + 1
	// Background is sent when the application leaves the foreground.
	Background
	// Tick is a scheduled refresh check.
	Tick
)

func (k Kind) String() string {
	switch k {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	case Tick:
		return "tick"
	default:
		return "unknown"
	}
}

// Event is a lifecycle transition observed at At.
type Event struct {
	Kind Kind
	At   time.Time
}

func NewEvent(kind Kind, at time.Time) Event {
	return Event{Kind: kind, At: at}
}

// Refreshes reports whether the event should trigger a refresh check.
func (e Event) Refreshes() bool {
	return e.Kind == Foreground || e.Kind == Tick
}
