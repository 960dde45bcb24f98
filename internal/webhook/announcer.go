package webhook

import (
	"github.com/nerrad567/garage-door-core/internal/door"
)

// Caller is the delivery seam, narrowed so tests can observe fires
// without a live HTTP endpoint. Satisfied by *Notifier.
type Caller interface {
	Fire(url string)
}

// Announcer fires the door-level webhooks: one URL when the door
// reaches fully open, one when it reaches fully closed. Moving and
// intermediate states announce nothing; per-sensor occupancy hooks are
// the sensor bridges' business.
type Announcer struct {
	caller Caller
	opened string
	closed string
}

// NewAnnouncer creates an announcer. An empty URL disables the
// corresponding notification.
func NewAnnouncer(caller Caller, openedURL, closedURL string) *Announcer {
	return &Announcer{caller: caller, opened: openedURL, closed: closedURL}
}

// HandleEvent fires the URL matching a terminal state change, if any.
// Subscribed to the event bus.
func (a *Announcer) HandleEvent(ev door.Event) {
	if ev.Type != door.EventStateChanged {
		return
	}
	switch ev.To {
	case door.StateOpen:
		a.fire(a.opened)
	case door.StateClosed:
		a.fire(a.closed)
	}
}

func (a *Announcer) fire(url string) {
	if url == "" {
		return
	}
	a.caller.Fire(url)
}
