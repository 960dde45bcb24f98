package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// FakeSource is an in-memory backend for tests and dry-run deployments.
// Set changes a sensor level and emits it immediately; a background loop
// re-emits every held level at the configured interval, mimicking a polled
// backend confirming its stable readings.
type FakeSource struct {
	interval time.Duration

	mu     sync.Mutex
	emit   func(Sample)
	levels map[string]Sample
	closed bool
}

// NewFakeSource creates a fake source. A non-positive interval defaults
// to 100ms.
func NewFakeSource(interval time.Duration) *FakeSource {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &FakeSource{
		interval: interval,
		levels:   make(map[string]Sample),
	}
}

// Start begins re-emitting held levels until ctx is cancelled.
func (f *FakeSource) Start(ctx context.Context, emit func(Sample)) error {
	f.mu.Lock()
	f.emit = emit
	f.mu.Unlock()

	go func() {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.reemit()
			}
		}
	}()
	return nil
}

// Set updates a sensor level. The sample is emitted immediately when the
// source has been started.
func (f *FakeSource) Set(role door.SensorKind, sensor string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	s := Sample{Role: role, Sensor: sensor, Active: active, At: time.Now()}
	f.levels[sensor] = s
	if f.emit != nil {
		f.emit(s)
	}
}

// Close stops the source; further Set calls are ignored.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeSource) reemit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.emit == nil {
		return
	}
	now := time.Now()
	for name, s := range f.levels {
		s.At = now
		f.levels[name] = s
		f.emit(s)
	}
}
