//go:build linux

package actuator

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// GPIORelayOptions configures the direct relay-pair backend.
type GPIORelayOptions struct {
	// Chip names the gpiochip device, default "gpiochip0".
	Chip string

	// OpenLine and CloseLine are the relay coil output offsets.
	OpenLine  int
	CloseLine int

	// Pulse releases the line automatically after this duration, for
	// openers whose head unit latches motion from a momentary trigger.
	// Zero holds the line until Disengage, for direct contactor wiring.
	Pulse time.Duration
}

// GPIORelay energises one of two relay coils wired to a Linux GPIO
// character device. Both coils low is the safe state; the interlock
// refuses to raise one while the other is claimed.
type GPIORelay struct {
	opts   GPIORelayOptions
	logger Logger

	chip      *gpiocdev.Chip
	openLine  *gpiocdev.Line
	closeLine *gpiocdev.Line

	lock interlock

	mu         sync.Mutex
	pulseTimer *time.Timer

	closeOnce sync.Once
	closeErr  error
}

// NewGPIORelay opens the chip and requests both coil lines as outputs
// driven low.
func NewGPIORelay(opts GPIORelayOptions) (*GPIORelay, error) {
	if opts.Chip == "" {
		opts.Chip = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(opts.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", opts.Chip, err)
	}

	openLine, err := chip.RequestLine(opts.OpenLine, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request open relay line %d: %w", opts.OpenLine, err)
	}
	closeLine, err := chip.RequestLine(opts.CloseLine, gpiocdev.AsOutput(0))
	if err != nil {
		openLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request close relay line %d: %w", opts.CloseLine, err)
	}

	return &GPIORelay{
		opts:      opts,
		logger:    noopLogger{},
		chip:      chip,
		openLine:  openLine,
		closeLine: closeLine,
	}, nil
}

// SetLogger sets the logger for the driver. Call before use.
func (g *GPIORelay) SetLogger(logger Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Engage raises the coil for the given direction. With a pulse configured
// the coil drops again automatically once it elapses.
func (g *GPIORelay) Engage(dir door.Direction) error {
	line, err := g.lineFor(dir)
	if err != nil {
		return err
	}
	if err := g.lock.engage(dir); err != nil {
		return err
	}
	if err := line.SetValue(1); err != nil {
		g.lock.disengage()
		return fmt.Errorf("engage %s: raise line: %w", dir, err)
	}
	g.logger.Info("relay engaged", "direction", dir, "pulse", g.opts.Pulse)

	if g.opts.Pulse > 0 {
		g.armPulseRelease(line, dir)
	}
	return nil
}

// Disengage drops both coils. Safe to call while idle.
func (g *GPIORelay) Disengage() error {
	g.cancelPulse()
	prev := g.lock.disengage()

	var errs []error
	if err := g.openLine.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drop open coil: %w", err))
	}
	if err := g.closeLine.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drop close coil: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("disengage: %v", errs)
	}
	if prev != "" {
		g.logger.Info("relay disengaged", "direction", prev)
	}
	return nil
}

// Engaged reports the currently claimed direction, empty when idle.
func (g *GPIORelay) Engaged() door.Direction {
	return g.lock.current()
}

// Close drops both coils and releases the chip.
func (g *GPIORelay) Close() error {
	g.closeOnce.Do(func() {
		var errs []error
		if err := g.Disengage(); err != nil {
			errs = append(errs, err)
		}
		if err := g.openLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close open line: %w", err))
		}
		if err := g.closeLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close close line: %w", err))
		}
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		if len(errs) > 0 {
			g.closeErr = fmt.Errorf("close errors: %v", errs)
		}
	})
	return g.closeErr
}

func (g *GPIORelay) lineFor(dir door.Direction) (*gpiocdev.Line, error) {
	switch dir {
	case door.DirectionForward:
		return g.openLine, nil
	case door.DirectionReverse:
		return g.closeLine, nil
	default:
		return nil, fmt.Errorf("no relay line for direction %q", dir)
	}
}

func (g *GPIORelay) armPulseRelease(line *gpiocdev.Line, dir door.Direction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pulseTimer != nil {
		g.pulseTimer.Stop()
	}
	g.pulseTimer = time.AfterFunc(g.opts.Pulse, func() {
		if err := line.SetValue(0); err != nil {
			g.logger.Error("pulse release failed", "direction", dir, "error", err)
			return
		}
		g.lock.disengage()
		g.logger.Debug("pulse released", "direction", dir)
	})
}

func (g *GPIORelay) cancelPulse() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pulseTimer != nil {
		g.pulseTimer.Stop()
		g.pulseTimer = nil
	}
}
