package actuator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// ErrOpposedDirection is returned when Engage is called while the driver
// is still engaged in the opposite direction. The state machine always
// disengages before reversing, so hitting this is a programming error in
// the caller, not a hardware fault.
var ErrOpposedDirection = errors.New("actuator already engaged in the opposite direction")

// FaultFunc delivers asynchronous hardware faults (stall, overcurrent)
// into the state machine's inbound queue, typically machine.ReportFault.
type FaultFunc func(kind door.FaultKind, detail string)

// Logger defines the logging interface used by the actuator package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// interlock tracks the engaged direction and refuses opposed engagement.
// Every shipped driver embeds one so the two-directions-at-once invariant
// holds regardless of backend. The empty direction means idle.
type interlock struct {
	mu      sync.Mutex
	engaged door.Direction
}

// engage claims the given direction. Re-engaging the same direction is
// allowed (momentary backends re-pulse); the opposite direction is not.
func (il *interlock) engage(dir door.Direction) error {
	il.mu.Lock()
	defer il.mu.Unlock()
	if il.engaged != "" && il.engaged != dir {
		return fmt.Errorf("%w: engaged %s, requested %s", ErrOpposedDirection, il.engaged, dir)
	}
	il.engaged = dir
	return nil
}

// disengage releases the claim and reports which direction was held.
func (il *interlock) disengage() door.Direction {
	il.mu.Lock()
	defer il.mu.Unlock()
	prev := il.engaged
	il.engaged = ""
	return prev
}

func (il *interlock) current() door.Direction {
	il.mu.Lock()
	defer il.mu.Unlock()
	return il.engaged
}
