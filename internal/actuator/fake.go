package actuator

import (
	"sync"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// FakeDriver is an in-memory actuator for tests and deployments without
// hardware. It records every call, enforces the same interlock as the
// real backends and can inject asynchronous hardware faults.
type FakeDriver struct {
	mu           sync.Mutex
	calls        []string
	engaged      door.Direction
	engageErr    error
	disengageErr error
	onFault      FaultFunc
}

// NewFakeDriver creates an idle fake.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Engage records the call and claims the direction.
func (f *FakeDriver) Engage(dir door.Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.engageErr != nil {
		return f.engageErr
	}
	if f.engaged != "" && f.engaged != dir {
		return ErrOpposedDirection
	}
	f.engaged = dir
	f.calls = append(f.calls, "engage:"+string(dir))
	return nil
}

// Disengage records the call and releases any claim.
func (f *FakeDriver) Disengage() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disengageErr != nil {
		return f.disengageErr
	}
	f.engaged = ""
	f.calls = append(f.calls, "disengage")
	return nil
}

// Engaged reports the currently claimed direction, empty when idle.
func (f *FakeDriver) Engaged() door.Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engaged
}

// Calls returns a copy of the recorded call sequence.
func (f *FakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// SetEngageErr makes subsequent Engage calls fail with err.
func (f *FakeDriver) SetEngageErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engageErr = err
}

// SetDisengageErr makes subsequent Disengage calls fail with err.
func (f *FakeDriver) SetDisengageErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disengageErr = err
}

// SetFaultHandler wires asynchronous fault delivery, typically the
// machine's ReportFault.
func (f *FakeDriver) SetFaultHandler(fn FaultFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFault = fn
}

// InjectFault delivers a hardware fault through the registered handler,
// simulating a stall or overcurrent report from the motor controller.
func (f *FakeDriver) InjectFault(kind door.FaultKind, detail string) {
	f.mu.Lock()
	fn := f.onFault
	f.mu.Unlock()
	if fn != nil {
		fn(kind, detail)
	}
}
