package door

import (
	"context"
	"fmt"
	"time"
)

// Controller is the slice of the state machine the safety monitor needs.
// It never mutates state directly; ForceStop injects a synthetic event into
// the machine's serialized queue, preserving single-writer discipline.
type Controller interface {
	Snapshot() Snapshot
	ForceStop(detail string)
}

// MonitorConfig carries the watchdog's timings. MaxTravel and
// ObstructionFreshness should match the machine's own settings; TravelGrace
// is the extra allowance before the watchdog overrides a travel the machine
// failed to time out itself.
type MonitorConfig struct {
	CheckInterval        time.Duration
	MaxTravel            time.Duration
	TravelGrace          time.Duration
	ObstructionFreshness time.Duration
}

func (c *MonitorConfig) applyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 100 * time.Millisecond
	}
	if c.MaxTravel <= 0 {
		c.MaxTravel = DefaultConfig().MaxTravel
	}
	if c.TravelGrace <= 0 {
		c.TravelGrace = 2 * time.Second
	}
	if c.ObstructionFreshness <= 0 {
		c.ObstructionFreshness = DefaultConfig().ObstructionFreshness
	}
}

// obstructionStaleFactor sets the watchdog's staleness cutoff as a multiple
// of the freshness window. Readers refresh at half the window, so one
// missed refresh is tolerated before the watchdog steps in.
const obstructionStaleFactor = 2

// Monitor is the independent safety watchdog. On its own cadence it
// re-checks two bounds the machine already enforces itself: the maximum
// travel duration and obstruction reading freshness while closing. When a
// bound is violated it requests a forced stop through the machine's queue.
type Monitor struct {
	ctrl   Controller
	cfg    MonitorConfig
	logger Logger

	// lastStopped dedupes overrides: one forced stop per travel interval,
	// keyed by the interval's start time.
	lastStopped time.Time
}

// NewMonitor creates a safety monitor for the given controller.
func NewMonitor(ctrl Controller, cfg MonitorConfig) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the monitor. Call before Start.
func (w *Monitor) SetLogger(logger Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Start launches the watchdog loop. It returns immediately; the loop runs
// until ctx is cancelled.
func (w *Monitor) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Monitor) run(ctx context.Context) {
	w.logger.Info("safety monitor started",
		"check_interval", w.cfg.CheckInterval,
		"travel_cutoff", w.cfg.MaxTravel+w.cfg.TravelGrace,
	)
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("safety monitor stopped")
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Monitor) check() {
	snap := w.ctrl.Snapshot()
	if snap.State != StateOpening && snap.State != StateClosing {
		return
	}
	if snap.TravelStarted.IsZero() || snap.TravelStarted.Equal(w.lastStopped) {
		return
	}

	cutoff := w.cfg.MaxTravel + w.cfg.TravelGrace
	if elapsed := time.Since(snap.TravelStarted); elapsed > cutoff {
		w.logger.Warn("travel exceeded watchdog cutoff",
			"state", snap.State,
			"elapsed", elapsed,
			"cutoff", cutoff,
		)
		w.lastStopped = snap.TravelStarted
		w.ctrl.ForceStop(fmt.Sprintf("travel exceeded watchdog cutoff %s", cutoff))
		return
	}

	if snap.State != StateClosing {
		return
	}
	stale := w.cfg.ObstructionFreshness * obstructionStaleFactor
	if snap.ObstructionAt.IsZero() || time.Since(snap.ObstructionAt) > stale {
		w.logger.Warn("obstruction reading stale while closing",
			"last_reading", snap.ObstructionAt,
			"stale_after", stale,
		)
		w.lastStopped = snap.TravelStarted
		w.ctrl.ForceStop(fmt.Sprintf("obstruction reading stale while closing (older than %s)", stale))
	}
}
