package sensor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// ─── Test doubles ────────────────────────────────────────────────────────────

type eventRecorder struct {
	mu     sync.Mutex
	events []door.SensorEvent
}

func (r *eventRecorder) add(ev door.SensorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *eventRecorder) all() []door.SensorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]door.SensorEvent, len(r.events))
	copy(out, r.events)
	return out
}

type faultRecorder struct {
	mu    sync.Mutex
	kinds []door.FaultKind
}

func (r *faultRecorder) add(kind door.FaultKind, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *faultRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kinds)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func waitForCount(t *testing.T, count func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("count = %d, want %d", count(), want)
}

func sampleAt(role door.SensorKind, sensor string, active bool, at time.Time) Sample {
	return Sample{Role: role, Sensor: sensor, Active: active, At: at}
}

// ─── Debounce ────────────────────────────────────────────────────────────────

func TestReader_CommitsSparseSampleAfterDebounce(t *testing.T) {
	rec := &eventRecorder{}
	r := NewReader(Config{Debounce: 20 * time.Millisecond}, rec.add)

	// A single push message, no follow-up samples.
	r.Ingest(sampleAt(door.SensorClosedSwitch, "closed-contact", true, time.Now()))

	waitForCount(t, rec.count, 1)
	ev := rec.all()[0]
	if ev.Kind != door.SensorClosedSwitch {
		t.Errorf("Kind = %v, want %v", ev.Kind, door.SensorClosedSwitch)
	}
	if !ev.Active {
		t.Error("Active = false, want true")
	}
	if ev.Sensor != "closed-contact" {
		t.Errorf("Sensor = %q, want %q", ev.Sensor, "closed-contact")
	}
}

func TestReader_SuppressesBounce(t *testing.T) {
	rec := &eventRecorder{}
	r := NewReader(Config{Debounce: 30 * time.Millisecond}, rec.add)

	// Establish a stable inactive baseline.
	r.Ingest(sampleAt(door.SensorOpenSwitch, "open-contact", false, time.Now()))
	waitForCount(t, rec.count, 1)

	// A blip shorter than the debounce duration.
	r.Ingest(sampleAt(door.SensorOpenSwitch, "open-contact", true, time.Now()))
	time.Sleep(5 * time.Millisecond)
	r.Ingest(sampleAt(door.SensorOpenSwitch, "open-contact", false, time.Now()))

	time.Sleep(60 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("events = %d, want 1 (bounce must not surface)", got)
	}
}

func TestReader_SingleEventPerTransition(t *testing.T) {
	rec := &eventRecorder{}
	r := NewReader(Config{Debounce: 15 * time.Millisecond}, rec.add)

	// Polled backend: the same level repeats every cycle.
	r.Ingest(sampleAt(door.SensorOpenSwitch, "open-contact", false, time.Now()))
	waitForCount(t, rec.count, 1)

	for i := 0; i < 6; i++ {
		r.Ingest(sampleAt(door.SensorOpenSwitch, "open-contact", true, time.Now()))
		time.Sleep(5 * time.Millisecond)
	}

	waitForCount(t, rec.count, 2)
	time.Sleep(30 * time.Millisecond)
	if got := rec.count(); got != 2 {
		t.Errorf("events = %d, want 2 (one per physical transition)", got)
	}
	if ev := rec.all()[1]; !ev.Active {
		t.Error("second event Active = false, want true")
	}
}

func TestReader_BaselineEmitsInactiveLevel(t *testing.T) {
	rec := &eventRecorder{}
	r := NewReader(Config{Debounce: 10 * time.Millisecond}, rec.add)

	// Cold start with the door away from this switch: the machine still
	// needs the level to derive its position.
	r.Ingest(sampleAt(door.SensorClosedSwitch, "closed-contact", false, time.Now()))

	waitForCount(t, rec.count, 1)
	if ev := rec.all()[0]; ev.Active {
		t.Error("baseline event Active = true, want false")
	}
}

func TestReader_StampsZeroSampleTimes(t *testing.T) {
	rec := &eventRecorder{}
	r := NewReader(Config{Debounce: 10 * time.Millisecond}, rec.add)

	r.Ingest(Sample{Role: door.SensorOpenSwitch, Sensor: "open-contact", Active: true})

	waitForCount(t, rec.count, 1)
	if ev := rec.all()[0]; ev.At.IsZero() {
		t.Error("At is zero, want a stamped read time")
	}
}

// ─── Role aggregation ────────────────────────────────────────────────────────

func TestReader_AggregatesRoleWithOR(t *testing.T) {
	rec := &eventRecorder{}
	r := NewReader(Config{Debounce: 10 * time.Millisecond, ObstructionRefresh: time.Hour}, rec.add)

	ingest := func(sensor string, active bool) {
		t.Helper()
		r.Ingest(sampleAt(door.SensorObstruction, sensor, active, time.Now()))
		time.Sleep(25 * time.Millisecond)
	}

	// Two redundant beam receivers settle clear; only the first commit
	// changes the aggregate.
	ingest("beam-east", false)
	ingest("beam-west", false)
	if got := rec.count(); got != 1 {
		t.Fatalf("events after baselines = %d, want 1", got)
	}

	// East trips, west follows, then they release in the same order. The
	// aggregate changes only at the first trip and the last release.
	ingest("beam-east", true)
	ingest("beam-west", true)
	ingest("beam-east", false)
	ingest("beam-west", false)

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	wantActive := []bool{false, true, false}
	for i, ev := range got {
		if ev.Active != wantActive[i] {
			t.Errorf("event %d Active = %v, want %v", i, ev.Active, wantActive[i])
		}
	}
}

// ─── Obstruction refresh ─────────────────────────────────────────────────────

func TestReader_RefreshesObstructionOnConfirmingSamples(t *testing.T) {
	rec := &eventRecorder{}
	r := NewReader(Config{
		Debounce:           10 * time.Millisecond,
		ObstructionRefresh: 50 * time.Millisecond,
	}, rec.add)

	r.Ingest(sampleAt(door.SensorObstruction, "beam", false, time.Now()))
	waitForCount(t, rec.count, 1)

	// Confirming sample inside the throttle window: no re-emission.
	r.Ingest(sampleAt(door.SensorObstruction, "beam", false, time.Now()))
	if got := rec.count(); got != 1 {
		t.Fatalf("events inside throttle window = %d, want 1", got)
	}

	time.Sleep(60 * time.Millisecond)
	readAt := time.Now().Add(-2 * time.Millisecond)
	r.Ingest(sampleAt(door.SensorObstruction, "beam", false, readAt))

	waitForCount(t, rec.count, 2)
	ev := rec.all()[1]
	if ev.Active {
		t.Error("refresh event Active = true, want false")
	}
	if !ev.At.Equal(readAt) {
		t.Errorf("refresh event At = %v, want the sample's own read time %v", ev.At, readAt)
	}
}

func TestReader_NoRefreshWithoutSamples(t *testing.T) {
	rec := &eventRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewReader(Config{
		Debounce:           10 * time.Millisecond,
		ObstructionRefresh: 20 * time.Millisecond,
		DropoutWindow:      40 * time.Millisecond,
	}, rec.add)
	r.Start(ctx)

	r.Ingest(sampleAt(door.SensorObstruction, "beam", false, time.Now()))
	waitForCount(t, rec.count, 1)

	// The beam goes quiet. Nothing may keep its reading fresh.
	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("events = %d, want 1 (silence must not refresh)", got)
	}
}

// ─── Dropout detection ───────────────────────────────────────────────────────

func TestReader_RaisesDropoutOncePerTravel(t *testing.T) {
	rec := &eventRecorder{}
	faults := &faultRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewReader(Config{Debounce: 5 * time.Millisecond, DropoutWindow: 40 * time.Millisecond}, rec.add)
	r.SetFaultHandler(faults.add)
	r.Start(ctx)

	r.SetMotionExpected(true)

	waitForCount(t, faults.count, 1)
	faults.mu.Lock()
	kind := faults.kinds[0]
	faults.mu.Unlock()
	if kind != door.FaultSensorDropout {
		t.Errorf("fault kind = %v, want %v", kind, door.FaultSensorDropout)
	}

	time.Sleep(120 * time.Millisecond)
	if got := faults.count(); got != 1 {
		t.Errorf("faults = %d, want 1 (one per travel)", got)
	}
}

func TestReader_NoDropoutWhileSwitchesChange(t *testing.T) {
	rec := &eventRecorder{}
	faults := &faultRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewReader(Config{Debounce: 5 * time.Millisecond, DropoutWindow: 60 * time.Millisecond}, rec.add)
	r.SetFaultHandler(faults.add)
	r.Start(ctx)

	r.SetMotionExpected(true)

	level := false
	for i := 0; i < 6; i++ {
		r.Ingest(sampleAt(door.SensorOpenSwitch, "open-contact", level, time.Now()))
		level = !level
		time.Sleep(20 * time.Millisecond)
	}

	if got := faults.count(); got != 0 {
		t.Errorf("faults = %d, want 0 (switches kept reporting)", got)
	}
}

func TestReader_DropoutRearmsOnNextTravel(t *testing.T) {
	rec := &eventRecorder{}
	faults := &faultRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewReader(Config{Debounce: 5 * time.Millisecond, DropoutWindow: 30 * time.Millisecond}, rec.add)
	r.SetFaultHandler(faults.add)
	r.Start(ctx)

	r.SetMotionExpected(true)
	waitForCount(t, faults.count, 1)

	r.SetMotionExpected(false)
	r.SetMotionExpected(true)
	waitForCount(t, faults.count, 2)
}

func TestReader_NoDropoutWhenStationary(t *testing.T) {
	rec := &eventRecorder{}
	faults := &faultRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := NewReader(Config{Debounce: 5 * time.Millisecond, DropoutWindow: 30 * time.Millisecond}, rec.add)
	r.SetFaultHandler(faults.add)
	r.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	if got := faults.count(); got != 0 {
		t.Errorf("faults = %d, want 0 (no motion expected)", got)
	}
}

// ─── Fake source ─────────────────────────────────────────────────────────────

func TestFakeSource_SetEmitsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var samples []Sample
	src := NewFakeSource(time.Hour)
	if err := src.Start(ctx, func(s Sample) {
		mu.Lock()
		defer mu.Unlock()
		samples = append(samples, s)
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { src.Close() })

	src.Set(door.SensorClosedSwitch, "closed-contact", true)

	mu.Lock()
	defer mu.Unlock()
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if samples[0].Role != door.SensorClosedSwitch || !samples[0].Active {
		t.Errorf("sample = %+v, want active closed_switch", samples[0])
	}
}

func TestFakeSource_ReemitsHeldLevels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	count := 0
	src := NewFakeSource(15 * time.Millisecond)
	if err := src.Start(ctx, func(Sample) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { src.Close() })

	src.Set(door.SensorObstruction, "beam", false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := count
		mu.Unlock()
		if n >= 4 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("fake source never re-emitted its held level")
}

func TestFakeSource_CloseStopsEmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	count := 0
	src := NewFakeSource(10 * time.Millisecond)
	if err := src.Start(ctx, func(Sample) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	src.Set(door.SensorObstruction, "beam", true)
	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	before := count
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	after := count
	mu.Unlock()
	if after != before {
		t.Errorf("emissions after Close = %d, want 0", after-before)
	}
}
