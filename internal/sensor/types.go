package sensor

import (
	"context"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// Sample is one raw reading from a backend: which signal it belongs to,
// the logical level after any wiring inversion, and when the hardware was
// actually read. Samples are noisy; the Reader debounces them.
type Sample struct {
	Role   door.SensorKind
	Sensor string
	Active bool
	At     time.Time
}

// Source is a push-based sensor backend. Start launches the backend's own
// goroutines and delivers every raw reading to emit until ctx is
// cancelled. Shipped backends: the zigbee2mqtt bridge, the Linux GPIO
// poller and the fake source.
type Source interface {
	Start(ctx context.Context, emit func(Sample)) error
	Close() error
}

// GPIOLine maps one character-device line onto a sensor role. ActiveLow
// marks contacts that switch to ground: the line idles high and a raw
// zero means the sensor is asserted.
type GPIOLine struct {
	Line      int
	Name      string
	Role      door.SensorKind
	ActiveLow bool
}

// Config carries the reader's timing settings.
type Config struct {
	// Debounce is the minimum stable duration before a level change is
	// believed. Electrical bounce shorter than this never surfaces.
	Debounce time.Duration

	// DropoutWindow bounds how long the position switches may stay silent
	// while motion is expected before the reader raises a sensor dropout
	// fault.
	DropoutWindow time.Duration

	// ObstructionRefresh throttles re-emission of unchanged obstruction
	// levels. Each genuine sample may refresh the machine's freshness
	// clock at most this often.
	ObstructionRefresh time.Duration
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 50 * time.Millisecond
	}
	if c.DropoutWindow <= 0 {
		c.DropoutWindow = 5 * time.Second
	}
	if c.ObstructionRefresh <= 0 {
		c.ObstructionRefresh = 200 * time.Millisecond
	}
}

// Logger defines the logging interface used by the sensor package.
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
