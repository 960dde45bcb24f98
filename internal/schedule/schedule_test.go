package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// ─── Fake submitter ──────────────────────────────────────────────────────────

type submitCall struct {
	action door.Action
	source string
	at     time.Time
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []submitCall
	err   error
}

func (f *fakeSubmitter) Submit(action door.Action, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, submitCall{action: action, source: source, at: time.Now()})
	return f.err
}

func (f *fakeSubmitter) submitted() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.calls...)
}

// fixedSolar returns a solarFunc that places the solar event at the same
// UTC clock time every day.
func fixedSolar(hour, minute int) solarFunc {
	return func(_, _ float64, year int, month time.Month, day int) (time.Time, time.Time) {
		at := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
		return at, at.Add(10 * time.Hour)
	}
}

// relativeSolar returns a solarFunc whose sunrise and sunset both land at
// the fixed instant, regardless of the day asked about. Used to arm
// triggers a few milliseconds out.
func relativeSolar(at time.Time) solarFunc {
	return func(_, _ float64, _ int, _ time.Month, _ int) (time.Time, time.Time) {
		return at, at
	}
}

func waitForCalls(t *testing.T, f *fakeSubmitter, want int) []submitCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := f.submitted(); len(calls) >= want {
			return calls
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d submitted commands, have %d", want, len(f.submitted()))
	return nil
}

// ─── Next fire computation ───────────────────────────────────────────────────

func TestNextFire_BeforeEvent(t *testing.T) {
	s := New(&fakeSubmitter{}, Config{Sunrise: Trigger{Action: ActionClose}})
	s.solar = fixedSolar(7, 0)
	now := time.Date(2026, time.March, 10, 5, 0, 0, 0, time.UTC)

	fireAt, ok := s.nextFire(Sunrise, Trigger{Action: ActionClose}, now)
	if !ok {
		t.Fatal("nextFire() ok = false, want true")
	}
	want := time.Date(2026, time.March, 10, 7, 0, 0, 0, time.UTC)
	if !fireAt.Equal(want) {
		t.Errorf("fireAt = %s, want %s", fireAt, want)
	}
}

func TestNextFire_PastEventRollsToTomorrow(t *testing.T) {
	s := New(&fakeSubmitter{}, Config{})
	s.solar = fixedSolar(7, 0)
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	fireAt, ok := s.nextFire(Sunrise, Trigger{Action: ActionClose}, now)
	if !ok {
		t.Fatal("nextFire() ok = false, want true")
	}
	want := time.Date(2026, time.March, 11, 7, 0, 0, 0, time.UTC)
	if !fireAt.Equal(want) {
		t.Errorf("fireAt = %s, want %s", fireAt, want)
	}
}

func TestNextFire_OffsetApplied(t *testing.T) {
	s := New(&fakeSubmitter{}, Config{})
	s.solar = fixedSolar(7, 0)
	now := time.Date(2026, time.March, 10, 5, 0, 0, 0, time.UTC)

	fireAt, ok := s.nextFire(Sunrise, Trigger{Action: ActionClose, Offset: 30 * time.Minute}, now)
	if !ok {
		t.Fatal("nextFire() ok = false, want true")
	}
	want := time.Date(2026, time.March, 10, 7, 30, 0, 0, time.UTC)
	if !fireAt.Equal(want) {
		t.Errorf("fireAt = %s, want %s", fireAt, want)
	}
}

func TestNextFire_NegativeOffsetJustPast(t *testing.T) {
	s := New(&fakeSubmitter{}, Config{})
	s.solar = fixedSolar(7, 0)
	// 06:45, with the trigger set 30 minutes before sunrise: today's
	// 06:30 is already gone, so tomorrow's applies.
	now := time.Date(2026, time.March, 10, 6, 45, 0, 0, time.UTC)

	fireAt, ok := s.nextFire(Sunrise, Trigger{Action: ActionClose, Offset: -30 * time.Minute}, now)
	if !ok {
		t.Fatal("nextFire() ok = false, want true")
	}
	want := time.Date(2026, time.March, 11, 6, 30, 0, 0, time.UTC)
	if !fireAt.Equal(want) {
		t.Errorf("fireAt = %s, want %s", fireAt, want)
	}
}

func TestNextFire_SunsetUsesSecondTime(t *testing.T) {
	s := New(&fakeSubmitter{}, Config{})
	s.solar = fixedSolar(7, 0) // sunset fixed 10h after sunrise
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	fireAt, ok := s.nextFire(Sunset, Trigger{Action: ActionVent}, now)
	if !ok {
		t.Fatal("nextFire() ok = false, want true")
	}
	want := time.Date(2026, time.March, 10, 17, 0, 0, 0, time.UTC)
	if !fireAt.Equal(want) {
		t.Errorf("fireAt = %s, want %s", fireAt, want)
	}
}

func TestNextFire_PolarDayReportsNoEvent(t *testing.T) {
	s := New(&fakeSubmitter{}, Config{})
	s.solar = func(_, _ float64, _ int, _ time.Month, _ int) (time.Time, time.Time) {
		return time.Time{}, time.Time{}
	}

	if _, ok := s.nextFire(Sunrise, Trigger{Action: ActionClose}, time.Now()); ok {
		t.Error("nextFire() ok = true, want false when the sun does not rise")
	}
}

// ─── Trigger loop ────────────────────────────────────────────────────────────

func TestScheduler_FiresCloseAtSunrise(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, Config{
		Sunrise:  Trigger{Action: ActionClose},
		Sunset:   Trigger{Action: ActionNone},
		Cooldown: time.Hour,
	})
	s.solar = relativeSolar(time.Now().Add(20 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	calls := waitForCalls(t, sub, 1)
	if calls[0].action != door.ActionClose {
		t.Errorf("action = %v, want %v", calls[0].action, door.ActionClose)
	}
	if calls[0].source != "schedule" {
		t.Errorf("source = %q, want %q", calls[0].source, "schedule")
	}
}

func TestScheduler_VentOpensThenStops(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, Config{
		Sunrise:    Trigger{Action: ActionNone},
		Sunset:     Trigger{Action: ActionVent},
		Cooldown:   time.Hour,
		VentTravel: 30 * time.Millisecond,
	})
	s.solar = relativeSolar(time.Now().Add(20 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	calls := waitForCalls(t, sub, 2)
	if calls[0].action != door.ActionOpen || calls[1].action != door.ActionStop {
		t.Fatalf("actions = [%v, %v], want [open, stop]", calls[0].action, calls[1].action)
	}
	if gap := calls[1].at.Sub(calls[0].at); gap < 25*time.Millisecond {
		t.Errorf("stop issued %s after open, want at least the vent travel", gap)
	}
}

func TestScheduler_CooldownHoldsNextFire(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, Config{
		Sunrise:  Trigger{Action: ActionClose},
		Sunset:   Trigger{Action: ActionNone},
		Cooldown: time.Hour,
	})
	// Solar time pinned slightly in the future on every recomputation;
	// without the cooldown the loop would fire continuously.
	s.solar = func(_, _ float64, _ int, _ time.Month, _ int) (time.Time, time.Time) {
		at := time.Now().Add(10 * time.Millisecond)
		return at, at
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	waitForCalls(t, sub, 1)
	time.Sleep(60 * time.Millisecond)
	if got := len(sub.submitted()); got != 1 {
		t.Errorf("submitted = %d commands, want 1 while cooling down", got)
	}
}

func TestScheduler_RejectionIsTolerated(t *testing.T) {
	sub := &fakeSubmitter{err: &door.RejectedError{Action: door.ActionClose, Reason: door.RejectAlreadyInState}}
	s := New(sub, Config{
		Sunrise:  Trigger{Action: ActionClose},
		Sunset:   Trigger{Action: ActionNone},
		Cooldown: time.Hour,
	})
	s.solar = relativeSolar(time.Now().Add(10 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	waitForCalls(t, sub, 1)
}

func TestScheduler_RejectedVentSkipsStop(t *testing.T) {
	sub := &fakeSubmitter{err: &door.RejectedError{Action: door.ActionOpen, Reason: door.RejectDeviceFaulted}}
	s := New(sub, Config{
		Sunrise:    Trigger{Action: ActionNone},
		Sunset:     Trigger{Action: ActionVent},
		Cooldown:   time.Hour,
		VentTravel: 5 * time.Millisecond,
	})
	s.solar = relativeSolar(time.Now().Add(10 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	waitForCalls(t, sub, 1)
	time.Sleep(30 * time.Millisecond)
	if got := len(sub.submitted()); got != 1 {
		t.Errorf("submitted = %d commands, want 1; no stop after a refused open", got)
	}
}

func TestScheduler_DisabledTriggersStayQuiet(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, Config{
		Sunrise: Trigger{Action: ActionNone},
		Sunset:  Trigger{Action: ""},
	})
	s.solar = relativeSolar(time.Now().Add(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)

	if got := len(sub.submitted()); got != 0 {
		t.Errorf("submitted = %d commands, want 0 with both triggers disabled", got)
	}
}
