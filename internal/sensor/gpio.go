//go:build linux

package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOSource polls reed switches and beam receivers wired to a Linux GPIO
// character device. Lines are requested as inputs with bias matching the
// wiring: pull-up for active-low contacts that switch to ground, pull-down
// otherwise.
type GPIOSource struct {
	chipName string
	poll     time.Duration
	lines    []GPIOLine
	logger   Logger

	chip      *gpiocdev.Chip
	requested []*gpiocdev.Line

	closeOnce sync.Once
	closeErr  error
}

// NewGPIOSource creates a polling source for the named gpiochip. A
// non-positive poll interval defaults to 25ms.
func NewGPIOSource(chipName string, poll time.Duration, lines []GPIOLine) *GPIOSource {
	if chipName == "" {
		chipName = "gpiochip0"
	}
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}
	return &GPIOSource{
		chipName: chipName,
		poll:     poll,
		lines:    lines,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the source. Call before Start.
func (g *GPIOSource) SetLogger(logger Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Start requests every configured line and begins the polling loop. It
// returns an error when the chip or any line cannot be acquired; the loop
// itself runs until ctx is cancelled.
func (g *GPIOSource) Start(ctx context.Context, emit func(Sample)) error {
	chip, err := gpiocdev.NewChip(g.chipName)
	if err != nil {
		return fmt.Errorf("open gpio chip %s: %w", g.chipName, err)
	}
	g.chip = chip

	for _, lc := range g.lines {
		bias := gpiocdev.WithPullDown
		if lc.ActiveLow {
			// Contact switches to ground; idle level must be pulled high.
			bias = gpiocdev.WithPullUp
		}
		line, err := chip.RequestLine(lc.Line, gpiocdev.AsInput, bias)
		if err != nil {
			g.releaseLines()
			chip.Close()
			g.chip = nil
			return fmt.Errorf("request line %d (%s): %w", lc.Line, lc.Name, err)
		}
		g.requested = append(g.requested, line)
	}

	g.logger.Info("gpio sensor source started",
		"chip", g.chipName,
		"lines", len(g.lines),
		"poll", g.poll,
	)

	go g.run(ctx, emit)
	return nil
}

// Close releases every requested line and the chip.
func (g *GPIOSource) Close() error {
	g.closeOnce.Do(func() {
		var errs []error
		for i, line := range g.requested {
			if err := line.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close line %d: %w", g.lines[i].Line, err))
			}
		}
		if g.chip != nil {
			if err := g.chip.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close chip: %w", err))
			}
		}
		if len(errs) > 0 {
			g.closeErr = fmt.Errorf("close errors: %v", errs)
		}
	})
	return g.closeErr
}

func (g *GPIOSource) run(ctx context.Context, emit func(Sample)) {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sample(emit)
		}
	}
}

func (g *GPIOSource) sample(emit func(Sample)) {
	now := time.Now()
	for i, line := range g.requested {
		lc := g.lines[i]
		raw, err := line.Value()
		if err != nil {
			g.logger.Error("gpio read failed", "line", lc.Line, "name", lc.Name, "error", err)
			continue
		}
		active := raw != 0
		if lc.ActiveLow {
			active = raw == 0
		}
		emit(Sample{Role: lc.Role, Sensor: lc.Name, Active: active, At: now})
	}
}

func (g *GPIOSource) releaseLines() {
	for _, line := range g.requested {
		line.Close()
	}
	g.requested = nil
}
