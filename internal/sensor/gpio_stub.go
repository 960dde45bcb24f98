//go:build !linux

package sensor

import (
	"context"
	"errors"
	"time"
)

// GPIOSource is not available on non-Linux platforms.
type GPIOSource struct{}

// NewGPIOSource returns a stub whose Start always fails.
func NewGPIOSource(chipName string, poll time.Duration, lines []GPIOLine) *GPIOSource {
	return &GPIOSource{}
}

// SetLogger is a no-op on non-Linux platforms.
func (g *GPIOSource) SetLogger(Logger) {}

// Start returns an error on non-Linux platforms.
func (g *GPIOSource) Start(context.Context, func(Sample)) error {
	return errors.New("gpio sensors not supported on this platform (requires Linux)")
}

// Close is a no-op on non-Linux platforms.
func (g *GPIOSource) Close() error {
	return nil
}
