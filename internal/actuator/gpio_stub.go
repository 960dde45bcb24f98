//go:build !linux

package actuator

import (
	"errors"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// GPIORelayOptions configures the direct relay-pair backend.
type GPIORelayOptions struct {
	Chip      string
	OpenLine  int
	CloseLine int
	Pulse     time.Duration
}

// GPIORelay is not available on non-Linux platforms.
type GPIORelay struct{}

// NewGPIORelay returns an error on non-Linux platforms.
func NewGPIORelay(opts GPIORelayOptions) (*GPIORelay, error) {
	return nil, errors.New("gpio actuator not supported on this platform (requires Linux)")
}

// SetLogger is a no-op on non-Linux platforms.
func (g *GPIORelay) SetLogger(Logger) {}

// Engage is not implemented on non-Linux platforms.
func (g *GPIORelay) Engage(door.Direction) error {
	return errors.New("gpio actuator not supported")
}

// Disengage is not implemented on non-Linux platforms.
func (g *GPIORelay) Disengage() error {
	return errors.New("gpio actuator not supported")
}

// Engaged always reports idle on non-Linux platforms.
func (g *GPIORelay) Engaged() door.Direction {
	return ""
}

// Close is a no-op on non-Linux platforms.
func (g *GPIORelay) Close() error {
	return nil
}
