package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// sensorState tracks debouncing for a single physical sensor.
type sensorState struct {
	role       door.SensorKind
	baselined  bool
	stable     bool
	hasPending bool
	pending    bool
	pendingAt  time.Time // hardware read time of the pending level
	pendingSeq int       // invalidates stale commit timers
}

// roleState is the aggregated level per signal role. Multiple sensors on
// one role are combined with OR: any active sensor asserts the role.
type roleState struct {
	known    bool
	level    bool
	lastEmit time.Time
}

// Reader turns raw backend samples into debounced sensor events for the
// state machine. Each physical transition yields exactly one event once
// the level has held for the debounce duration; obstruction levels are
// additionally re-emitted on genuine samples, throttled to the refresh
// interval, so the machine's freshness clock follows real hardware reads.
//
// The reader also watches for sensor dropout: while motion is expected,
// position switches that stay silent beyond the dropout window raise a
// FaultSensorDropout through the fault handler instead of letting the
// machine trust stale data.
//
// Ingest is safe for concurrent use by multiple sources.
type Reader struct {
	cfg     Config
	emit    func(door.SensorEvent)
	onFault func(door.FaultKind, string)
	logger  Logger

	mu                 sync.Mutex
	sensors            map[string]*sensorState
	roles              map[door.SensorKind]*roleState
	motionExpected     bool
	motionSince        time.Time
	lastPositionChange time.Time
	dropoutRaised      bool
}

// NewReader creates a reader that delivers debounced events to emit,
// typically the machine's HandleSensorEvent.
func NewReader(cfg Config, emit func(door.SensorEvent)) *Reader {
	cfg.applyDefaults()
	if emit == nil {
		emit = func(door.SensorEvent) {}
	}
	return &Reader{
		cfg:     cfg,
		emit:    emit,
		logger:  noopLogger{},
		sensors: make(map[string]*sensorState),
		roles:   make(map[door.SensorKind]*roleState),
	}
}

// SetLogger sets the logger for the reader. Call before Start.
func (r *Reader) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetFaultHandler wires dropout faults to a consumer, typically the
// machine's ReportFault. Call before Start.
func (r *Reader) SetFaultHandler(fn func(kind door.FaultKind, detail string)) {
	r.onFault = fn
}

// Start launches the dropout watchdog. It returns immediately; the
// watchdog runs until ctx is cancelled.
func (r *Reader) Start(ctx context.Context) {
	interval := r.cfg.DropoutWindow / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.checkDropout()
			}
		}
	}()
}

// SetMotionExpected arms or disarms dropout detection. The machine's
// supervisor calls this on every transition into or out of a travel state.
func (r *Reader) SetMotionExpected(expected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.motionExpected == expected {
		return
	}
	r.motionExpected = expected
	r.motionSince = time.Now()
	r.dropoutRaised = false
	r.logger.Debug("motion expectation changed", "expected", expected)
}

// Ingest feeds one raw sample through the debounce filter. Sources call
// this for every reading they take.
func (r *Reader) Ingest(s Sample) {
	if s.At.IsZero() {
		s.At = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.sensors[s.Sensor]
	if st == nil {
		st = &sensorState{role: s.Role}
		r.sensors[s.Sensor] = st
	}

	if !st.baselined || s.Active != st.stable {
		r.trackPendingLocked(st, s)
		return
	}

	// Sample confirms the stable level; any pending flip was bounce.
	st.hasPending = false
	st.pendingSeq++
	if st.role == door.SensorObstruction {
		r.refreshObstructionLocked(s)
	}
}

// trackPendingLocked arms or advances the pending level for a sensor whose
// sample disagrees with its stable level (or which has no baseline yet).
func (r *Reader) trackPendingLocked(st *sensorState, s Sample) {
	if !st.hasPending || st.pending != s.Active {
		st.hasPending = true
		st.pending = s.Active
		st.pendingAt = s.At
		st.pendingSeq++
		seq := st.pendingSeq
		name := s.Sensor
		// Sparse sources may never send a second sample; the timer commits
		// the level once it has held for the debounce duration.
		time.AfterFunc(r.cfg.Debounce, func() {
			r.commitAfterDebounce(name, seq)
		})
		return
	}
	if time.Since(st.pendingAt) >= r.cfg.Debounce {
		r.commitLocked(st, s.Sensor)
	}
}

// commitAfterDebounce is the timer path: commit the pending level if it is
// still the same one that armed this timer.
func (r *Reader) commitAfterDebounce(name string, seq int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.sensors[name]
	if st == nil || !st.hasPending || st.pendingSeq != seq {
		return
	}
	r.commitLocked(st, name)
}

// commitLocked promotes the pending level to stable and emits the role
// aggregate if it changed.
func (r *Reader) commitLocked(st *sensorState, name string) {
	level := st.pending
	at := st.pendingAt
	baseline := !st.baselined

	st.stable = level
	st.baselined = true
	st.hasPending = false
	st.pendingSeq++

	if st.role == door.SensorOpenSwitch || st.role == door.SensorClosedSwitch {
		r.lastPositionChange = time.Now()
	}

	r.logger.Debug("sensor level committed",
		"sensor", name,
		"role", st.role,
		"active", level,
		"baseline", baseline,
	)
	r.emitRoleLocked(st.role, name, at)
}

// emitRoleLocked recomputes the role aggregate and emits an event when it
// changed (or on the role's first committed level).
func (r *Reader) emitRoleLocked(role door.SensorKind, sensor string, at time.Time) {
	level := r.aggregateLocked(role)
	rs := r.roles[role]
	if rs == nil {
		rs = &roleState{}
		r.roles[role] = rs
	}
	if rs.known && rs.level == level {
		return
	}
	rs.known = true
	rs.level = level
	rs.lastEmit = time.Now()
	r.emit(door.SensorEvent{Kind: role, Sensor: sensor, Active: level, At: at})
}

// aggregateLocked ORs the stable levels of every baselined sensor on a role.
func (r *Reader) aggregateLocked(role door.SensorKind) bool {
	for _, st := range r.sensors {
		if st.role == role && st.baselined && st.stable {
			return true
		}
	}
	return false
}

// refreshObstructionLocked re-emits the current obstruction level for a
// confirming sample, throttled, so the machine's freshness window tracks
// genuine hardware reads. The event carries the sample's own read time;
// the reader never synthesises readings.
func (r *Reader) refreshObstructionLocked(s Sample) {
	rs := r.roles[door.SensorObstruction]
	if rs == nil || !rs.known {
		return
	}
	if time.Since(rs.lastEmit) < r.cfg.ObstructionRefresh {
		return
	}
	rs.lastEmit = time.Now()
	r.emit(door.SensorEvent{Kind: door.SensorObstruction, Sensor: s.Sensor, Active: rs.level, At: s.At})
}

func (r *Reader) checkDropout() {
	r.mu.Lock()
	if !r.motionExpected || r.dropoutRaised {
		r.mu.Unlock()
		return
	}
	last := r.lastPositionChange
	if r.motionSince.After(last) {
		last = r.motionSince
	}
	silent := time.Since(last)
	if silent <= r.cfg.DropoutWindow {
		r.mu.Unlock()
		return
	}
	r.dropoutRaised = true
	onFault := r.onFault
	r.mu.Unlock()

	r.logger.Error("position sensors silent while motion expected", "silent_for", silent)
	if onFault != nil {
		onFault(door.FaultSensorDropout,
			fmt.Sprintf("no position signal change for %s while motion expected", silent.Round(time.Millisecond)))
	}
}
