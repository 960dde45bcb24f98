package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// sourceName is stamped on every command the scheduler submits.
const sourceName = "schedule"

// EventKind identifies which solar boundary a trigger follows.
type EventKind string

const (
	Sunrise EventKind = "sunrise"
	Sunset  EventKind = "sunset"
)

// Action is what the scheduler does when a trigger fires.
type Action string

const (
	// ActionClose drives the door fully closed.
	ActionClose Action = "close"

	// ActionOpen drives the door fully open.
	ActionOpen Action = "open"

	// ActionVent opens briefly and stops, leaving a ventilation gap.
	ActionVent Action = "vent"

	// ActionNone disables the trigger.
	ActionNone Action = "none"
)

// Trigger configures one solar trigger.
type Trigger struct {
	// Action performed when the trigger fires.
	Action Action

	// Offset shifts the firing time relative to the solar event.
	// Negative means before it.
	Offset time.Duration
}

// Config carries the scheduler's location and trigger settings.
type Config struct {
	// Latitude and Longitude locate the site for the solar calculation.
	Latitude  float64
	Longitude float64

	Sunrise Trigger
	Sunset  Trigger

	// Cooldown pauses the trigger loop after each fire before the next
	// solar event is computed. The calculation near the boundary can
	// otherwise place the next fire within a minute of the last.
	Cooldown time.Duration

	// VentTravel is how long the door travels during ActionVent before
	// the stop is issued.
	VentTravel time.Duration
}

func (c *Config) applyDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Minute
	}
	if c.VentTravel <= 0 {
		c.VentTravel = 1500 * time.Millisecond
	}
}

// Submitter accepts door commands. Satisfied by *gateway.Gateway.
type Submitter interface {
	Submit(action door.Action, source string) error
}

// Logger defines the logging interface used by the schedule package.
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

// solarFunc computes the solar times for one calendar day. Matches
// sunrise.SunriseSunset so tests can substitute fixed times.
type solarFunc func(latitude, longitude float64, year int, month time.Month, day int) (time.Time, time.Time)

// Scheduler fires door commands at sunrise and sunset. Each enabled
// trigger runs its own loop: compute the next occurrence, sleep, fire,
// cool down, repeat.
type Scheduler struct {
	cfg    Config
	gw     Submitter
	logger Logger
	solar  solarFunc
}

// New creates a scheduler. The caller decides whether to Start it;
// a scheduler that is never started does nothing.
func New(gw Submitter, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:    cfg,
		gw:     gw,
		logger: noopLogger{},
		solar:  sunrise.SunriseSunset,
	}
}

// SetLogger replaces the default no-op logger.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches one loop per enabled trigger. It returns immediately;
// the loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range []struct {
		event   EventKind
		trigger Trigger
	}{
		{Sunrise, s.cfg.Sunrise},
		{Sunset, s.cfg.Sunset},
	} {
		if t.trigger.Action == ActionNone || t.trigger.Action == "" {
			continue
		}
		go s.run(ctx, t.event, t.trigger)
	}
}

func (s *Scheduler) run(ctx context.Context, event EventKind, trigger Trigger) {
	for {
		now := time.Now()
		fireAt, ok := s.nextFire(event, trigger, now)
		if !ok {
			// Polar night or midnight sun; look again tomorrow.
			s.logger.Warn("no solar event for this location today", "event", event)
			if !sleepCtx(ctx, 24*time.Hour) {
				return
			}
			continue
		}

		wait := fireAt.Sub(now)
		s.logger.Info("solar trigger armed",
			"event", event,
			"action", trigger.Action,
			"at", fireAt,
			"in", wait.Round(time.Second),
		)
		if !sleepCtx(ctx, wait) {
			return
		}

		s.fire(ctx, event, trigger.Action)

		s.logger.Info("solar trigger cooling down", "event", event, "for", s.cfg.Cooldown)
		if !sleepCtx(ctx, s.cfg.Cooldown) {
			return
		}
	}
}

// nextFire returns the next future occurrence of the trigger. ok is
// false when the location has no such solar event today or tomorrow.
func (s *Scheduler) nextFire(event EventKind, trigger Trigger, now time.Time) (time.Time, bool) {
	for days := 0; days <= 1; days++ {
		when := s.solarTime(event, now.AddDate(0, 0, days))
		if when.IsZero() {
			return time.Time{}, false
		}
		when = when.Add(trigger.Offset)
		if when.After(now) {
			return when, true
		}
	}
	return time.Time{}, false
}

func (s *Scheduler) solarTime(event EventKind, day time.Time) time.Time {
	y, m, d := day.UTC().Date()
	rise, set := s.solar(s.cfg.Latitude, s.cfg.Longitude, y, m, d)
	if event == Sunrise {
		return rise
	}
	return set
}

func (s *Scheduler) fire(ctx context.Context, event EventKind, action Action) {
	s.logger.Info("solar trigger fired", "event", event, "action", action)

	switch action {
	case ActionClose:
		s.submit(door.ActionClose)
	case ActionOpen:
		s.submit(door.ActionOpen)
	case ActionVent:
		s.vent(ctx)
	}
}

// submit sends one command. Rejections are routine here: at sunrise the
// door is usually already closed.
func (s *Scheduler) submit(action door.Action) {
	err := s.gw.Submit(action, sourceName)
	switch {
	case err == nil:
	case errors.Is(err, door.ErrRejected):
		s.logger.Info("scheduled command not applicable", "action", action, "reason", err)
	default:
		s.logger.Error("scheduled command failed", "action", action, "error", err)
	}
}

// vent nudges the door to the ventilation gap: open, let it travel
// briefly, stop. The stop is issued even when ctx is cancelled during
// the travel wait; a door left creeping open is worse than a late stop.
func (s *Scheduler) vent(ctx context.Context) {
	if err := s.gw.Submit(door.ActionOpen, sourceName); err != nil {
		if errors.Is(err, door.ErrRejected) {
			s.logger.Info("vent not applicable", "reason", err)
		} else {
			s.logger.Error("vent open failed", "error", err)
		}
		return
	}

	sleepCtx(ctx, s.cfg.VentTravel)
	s.submit(door.ActionStop)
}

// sleepCtx waits for d or ctx cancellation, reporting true when the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
