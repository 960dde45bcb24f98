package door

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the door package.
// The slog-backed logger in the logging package satisfies it.
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

// Driver is the hardware boundary for the door motor. Engage must fail fast
// if the actuator is already engaged in the opposite direction; the machine
// always disengages before reversing, so a failure here is a backend bug or
// a hardware refusal, never normal flow.
type Driver interface {
	Engage(dir Direction) error
	Disengage() error
}

// EventSink consumes the machine's outbound event stream. Publish is called
// from the control loop, one event at a time, in emission order; it must
// not block for long.
type EventSink interface {
	Publish(ev Event)
}

// noopSink discards events.
type noopSink struct{}

func (noopSink) Publish(Event) {}

// inboundQueueSize bounds the serialized inbound queue. Producers block
// when it is full, which backpressures sensor readers rather than dropping
// signal transitions.
const inboundQueueSize = 64

type msgKind int

const (
	msgSensor msgKind = iota
	msgCommand
	msgFault
	msgSafetyStop
	msgTravelTimeout
	msgSettleElapsed
)

// message is one entry in the machine's single ordered inbound queue.
// Sensor events, commands, injected faults, safety stops and the machine's
// own timer expiries all flow through it, which is what makes the
// transition table deterministic.
type message struct {
	kind   msgKind
	sensor SensorEvent
	cmd    Command
	reply  chan error // non-nil for commands submitted synchronously
	fault  FaultKind
	detail string
	seq    int // timer generation, guards against stale expiries
}

// obstructionReading is the latest obstruction sensor level and when it
// was reported. valid is false until the first reading arrives.
type obstructionReading struct {
	active bool
	at     time.Time
	valid  bool
}

// Machine is the authoritative door state machine and safety-interlock
// engine. It consumes sensor events and commands from a single serialized
// queue, decides when to engage or disengage the actuator, enforces travel
// timeouts and the obstruction guard, and emits an ordered event stream.
//
// All state mutation happens on one control-loop goroutine; public methods
// only enqueue work or read a mutex-guarded snapshot, so the Machine is
// safe for concurrent use.
type Machine struct {
	driver Driver
	cfg    Config
	sink   EventSink
	logger Logger

	in        chan message
	done      chan struct{} // closed when the control loop exits
	startOnce sync.Once

	// Guarded by mu: fields readable from outside the loop.
	mu            sync.RWMutex
	state         State
	lastTravel    Direction
	travelStarted time.Time // keeps its monotonic reading for Since comparisons
	obstruction   obstructionReading
	faults        []FaultRecord

	// Loop-owned, never touched outside the control loop.
	openActive   bool
	closedActive bool
	pending      *Command
	travelTimer  *time.Timer
	travelSeq    int
	settleTimer  *time.Timer
	settleSeq    int
}

// New creates a door state machine in StateUnknown. The driver must not be
// nil. Call SetLogger and SetEventSink before Start.
func New(driver Driver, cfg Config) *Machine {
	cfg.applyDefaults()
	return &Machine{
		driver:     driver,
		cfg:        cfg,
		sink:       noopSink{},
		logger:     noopLogger{},
		in:         make(chan message, inboundQueueSize),
		done:       make(chan struct{}),
		state:      StateUnknown,
		lastTravel: DirectionIdle,
	}
}

// SetLogger sets the logger for the machine. Call before Start.
func (m *Machine) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetEventSink sets the outbound event consumer. Call before Start.
func (m *Machine) SetEventSink(sink EventSink) {
	if sink != nil {
		m.sink = sink
	}
}

// Start launches the control loop. It returns immediately; the loop runs
// until ctx is cancelled, disengaging the actuator on the way out.
// Subsequent calls are no-ops.
func (m *Machine) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

// Done is closed once the control loop has exited and the actuator has
// been de-energised.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// SubmitCommand runs a command through the state machine and waits for the
// verdict. It returns nil when the command was executed or absorbed as an
// idempotent duplicate (open while already opening), a *RejectedError
// (matched by ErrRejected) when the command was refused, and ErrStopped
// after shutdown. An opposing directional command while moving is accepted:
// the door stops and the command is queued behind a settle delay.
func (m *Machine) SubmitCommand(cmd Command) error {
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now().UTC()
	}
	reply := make(chan error, 1)
	select {
	case m.in <- message{kind: msgCommand, cmd: cmd, reply: reply}:
	case <-m.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrStopped
	}
}

// HandleSensorEvent enqueues a debounced sensor event. Sensor readers call
// this from their own goroutines; ordering is preserved per caller.
func (m *Machine) HandleSensorEvent(ev SensorEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.enqueue(message{kind: msgSensor, sensor: ev})
}

// ReportFault injects an asynchronous hardware fault (stall, overcurrent,
// sensor dropout). The machine disengages the actuator and enters
// StateFaulted.
func (m *Machine) ReportFault(kind FaultKind, detail string) {
	m.enqueue(message{kind: msgFault, fault: kind, detail: detail})
}

// ForceStop requests a watchdog-forced stop. If the door is moving the
// machine disengages and enters StateFaulted with FaultSafetyOverride;
// otherwise the request only re-asserts an idle actuator.
func (m *Machine) ForceStop(detail string) {
	m.enqueue(message{kind: msgSafetyStop, detail: detail})
}

// State returns the current asserted door position.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns a point-in-time copy of the machine's observable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	open := 0
	for i := range m.faults {
		if m.faults[i].RecoveredAt == nil {
			open++
		}
	}
	return Snapshot{
		State:             m.state,
		LastDirection:     m.lastTravel,
		TravelStarted:     m.travelStarted,
		ObstructionActive: m.obstruction.active,
		ObstructionAt:     m.obstruction.at,
		FaultCount:        open,
	}
}

// Faults returns a copy of the in-memory fault history. The history is
// reset by an acknowledge command.
func (m *Machine) Faults() []FaultRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cpy := make([]FaultRecord, len(m.faults))
	copy(cpy, m.faults)
	return cpy
}

// enqueue delivers a message to the control loop, giving up once the loop
// has exited.
func (m *Machine) enqueue(msg message) {
	select {
	case m.in <- msg:
	case <-m.done:
	}
}

// ─── Control loop ────────────────────────────────────────────────────────────

func (m *Machine) run(ctx context.Context) {
	defer close(m.done)
	m.logger.Info("door state machine started",
		"state", m.state,
		"max_travel", m.cfg.MaxTravel,
		"obstruction_freshness", m.cfg.ObstructionFreshness,
		"auto_reverse", m.cfg.AutoReverse,
	)
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case msg := <-m.in:
			m.dispatch(msg)
		}
	}
}

// shutdown de-energises the actuator and cancels timers before the loop
// exits. The door must never stay powered across a process restart.
func (m *Machine) shutdown() {
	m.endTravel()
	m.clearSettle()
	if err := m.driver.Disengage(); err != nil {
		m.logger.Error("disengage on shutdown failed", "error", err)
	}
	m.logger.Info("door state machine stopped", "state", m.stateLocked())
}

func (m *Machine) dispatch(msg message) {
	switch msg.kind {
	case msgSensor:
		m.handleSensor(msg.sensor)
	case msgCommand:
		err := m.handleCommand(msg.cmd)
		if msg.reply != nil {
			msg.reply <- err
		}
	case msgFault:
		m.enterFault(msg.fault, msg.detail)
	case msgSafetyStop:
		m.handleSafetyStop(msg.detail)
	case msgTravelTimeout:
		m.handleTravelTimeout(msg.seq)
	case msgSettleElapsed:
		m.handleSettleElapsed(msg.seq)
	}
}

// stateLocked reads the state under the read lock. The loop's own writes
// happen under the write lock, so this is safe from either side.
func (m *Machine) stateLocked() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) moving() bool {
	s := m.stateLocked()
	return s == StateOpening || s == StateClosing
}

// ─── Sensor handling ─────────────────────────────────────────────────────────

func (m *Machine) handleSensor(ev SensorEvent) {
	m.logger.Debug("sensor event",
		"kind", ev.Kind,
		"sensor", ev.Sensor,
		"active", ev.Active,
	)

	switch ev.Kind {
	case SensorOpenSwitch:
		m.openActive = ev.Active
		m.handleOpenSwitch(ev)
	case SensorClosedSwitch:
		m.closedActive = ev.Active
		m.handleClosedSwitch(ev)
	case SensorObstruction:
		m.mu.Lock()
		m.obstruction = obstructionReading{active: ev.Active, at: ev.At, valid: true}
		m.mu.Unlock()
		m.handleObstruction(ev)
	case SensorCurrentSpike:
		m.handleCurrentSpike(ev)
	}
}

func (m *Machine) handleOpenSwitch(ev SensorEvent) {
	if !ev.Active {
		// The door left the fully open position without a command:
		// manual release or an external opener. Position is no longer known.
		if m.stateLocked() == StateOpen {
			m.transition(StateUnknown, "sensor:open_switch")
		}
		return
	}
	if m.closedActive {
		m.sensorConflict()
		return
	}
	switch m.stateLocked() {
	case StateOpening:
		m.endTravel()
		m.disengage()
		m.transition(StateOpen, "sensor:open_switch")
	case StateUnknown, StateStoppedPartial:
		m.transition(StateOpen, "sensor:open_switch")
	case StateClosing:
		m.logger.Warn("open switch asserted while closing", "sensor", ev.Sensor)
	}
}

func (m *Machine) handleClosedSwitch(ev SensorEvent) {
	if !ev.Active {
		if m.stateLocked() == StateClosed {
			m.transition(StateUnknown, "sensor:closed_switch")
		}
		return
	}
	if m.openActive {
		m.sensorConflict()
		return
	}
	switch m.stateLocked() {
	case StateClosing:
		m.endTravel()
		m.disengage()
		m.transition(StateClosed, "sensor:closed_switch")
	case StateUnknown, StateStoppedPartial:
		m.transition(StateClosed, "sensor:closed_switch")
	case StateOpening:
		m.logger.Warn("closed switch asserted while opening", "sensor", ev.Sensor)
	}
}

// sensorConflict handles both limit switches asserting at once. Reality is
// ambiguous, so any motion is stopped and the position drops to Unknown.
func (m *Machine) sensorConflict() {
	m.logger.Warn("position switches disagree",
		"open_active", m.openActive,
		"closed_active", m.closedActive,
	)
	if m.stateLocked() == StateFaulted {
		return
	}
	if m.moving() {
		m.endTravel()
		m.disengage()
	}
	m.transition(StateUnknown, "sensor_conflict")
}

func (m *Machine) handleObstruction(ev SensorEvent) {
	if !ev.Active || m.stateLocked() != StateClosing {
		return
	}
	m.endTravel()
	m.disengage()
	if m.cfg.AutoReverse {
		m.logger.Warn("obstruction while closing, reversing", "sensor", ev.Sensor)
		// An engage failure here faults the machine inside beginTravel.
		_ = m.beginTravel(DirectionForward, "obstruction_reverse")
		return
	}
	m.logger.Warn("obstruction while closing, stopping", "sensor", ev.Sensor)
	m.transition(StateStoppedPartial, "obstruction_stop")
}

func (m *Machine) handleCurrentSpike(ev SensorEvent) {
	if !ev.Active {
		return
	}
	if !m.moving() {
		m.logger.Warn("current spike while stationary", "sensor", ev.Sensor)
		return
	}
	m.enterFault(FaultOvercurrent, fmt.Sprintf("current spike from %s while %s", ev.Sensor, m.stateLocked()))
}

// ─── Command handling ────────────────────────────────────────────────────────

func (m *Machine) handleCommand(cmd Command) error {
	m.logger.Debug("command received",
		"action", cmd.Action,
		"source", cmd.Source,
		"command_id", cmd.ID,
	)

	if cmd.Action == ActionAcknowledge {
		if m.stateLocked() != StateFaulted {
			return m.reject(cmd, RejectNotFaulted)
		}
		m.acknowledge(cmd)
		return nil
	}
	if m.stateLocked() == StateFaulted {
		return m.reject(cmd, RejectDeviceFaulted)
	}

	// A fresh command supersedes any opposing command still queued behind
	// the settle delay.
	m.clearSettle()

	action := cmd.Action
	if action == ActionToggle {
		resolved, err := m.resolveToggle(cmd)
		if err != nil {
			return err
		}
		action = resolved
	}

	switch action {
	case ActionOpen:
		return m.commandOpen(cmd)
	case ActionClose:
		return m.commandClose(cmd)
	case ActionStop:
		return m.commandStop(cmd)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

// resolveToggle maps a toggle onto open, close or stop based on the current
// position. While moving it means stop, matching the momentary-button
// behaviour of a single-trigger opener. From StoppedPartial it resumes
// opposite to the last travel direction.
func (m *Machine) resolveToggle(cmd Command) (Action, error) {
	m.mu.RLock()
	state := m.state
	last := m.lastTravel
	m.mu.RUnlock()

	switch state {
	case StateOpen:
		return ActionClose, nil
	case StateClosed:
		return ActionOpen, nil
	case StateOpening, StateClosing:
		return ActionStop, nil
	case StateStoppedPartial:
		if last == DirectionForward {
			return ActionClose, nil
		}
		return ActionOpen, nil
	default:
		return "", m.reject(cmd, RejectPositionUnknown)
	}
}

func (m *Machine) commandOpen(cmd Command) error {
	switch m.stateLocked() {
	case StateOpen:
		return m.reject(cmd, RejectAlreadyInState)
	case StateOpening:
		// Idempotent duplicate: already doing it, exactly one engage happened.
		m.logger.Debug("already opening, command absorbed", "command_id", cmd.ID)
		return nil
	case StateClosing:
		m.stopThenQueue(cmd)
		return nil
	case StateUnknown:
		return m.reject(cmd, RejectPositionUnknown)
	default: // Closed, StoppedPartial
		return m.beginTravel(DirectionForward, "command:"+string(cmd.Action))
	}
}

func (m *Machine) commandClose(cmd Command) error {
	switch m.stateLocked() {
	case StateClosing:
		m.logger.Debug("already closing, command absorbed", "command_id", cmd.ID)
		return nil
	case StateOpening:
		m.stopThenQueue(cmd)
		return nil
	}

	// The obstruction guard is checked before any positional objection:
	// a close request without a fresh clear reading is refused outright.
	if !m.obstructionClear() {
		return m.reject(cmd, RejectObstructionUnclear)
	}

	switch m.stateLocked() {
	case StateClosed:
		return m.reject(cmd, RejectAlreadyInState)
	case StateUnknown:
		return m.reject(cmd, RejectPositionUnknown)
	default: // Open, StoppedPartial
		return m.beginTravel(DirectionReverse, "command:"+string(cmd.Action))
	}
}

func (m *Machine) commandStop(cmd Command) error {
	if !m.moving() {
		return m.reject(cmd, RejectAlreadyInState)
	}
	m.endTravel()
	m.disengage()
	m.transition(StateStoppedPartial, "command:"+string(cmd.Action))
	return nil
}

// stopThenQueue handles an opposing directional command while moving: the
// door never reverses instantly. It stops, holds the command until the
// settle delay elapses, then runs it through the normal guards.
func (m *Machine) stopThenQueue(cmd Command) {
	m.logger.Info("opposing command while moving, stopping first",
		"action", cmd.Action,
		"state", m.stateLocked(),
		"settle_delay", m.cfg.SettleDelay,
	)
	m.endTravel()
	m.disengage()
	queued := cmd
	m.pending = &queued
	m.settleSeq++
	seq := m.settleSeq
	m.settleTimer = time.AfterFunc(m.cfg.SettleDelay, func() {
		m.enqueue(message{kind: msgSettleElapsed, seq: seq})
	})
	m.transition(StateStoppedPartial, "command:"+string(cmd.Action))
}

func (m *Machine) handleSettleElapsed(seq int) {
	if seq != m.settleSeq || m.pending == nil {
		return
	}
	cmd := *m.pending
	m.pending = nil
	m.settleTimer = nil
	m.logger.Debug("settle delay elapsed, running queued command", "action", cmd.Action)
	if err := m.handleCommand(cmd); err != nil {
		m.logger.Warn("queued command not executed", "action", cmd.Action, "error", err)
	}
}

// acknowledge stamps and clears the fault history, drops back to Unknown
// and re-derives the position from the latest debounced switch readings.
func (m *Machine) acknowledge(cmd Command) {
	now := time.Now().UTC()
	m.mu.Lock()
	var cleared []FaultKind
	for i := range m.faults {
		if m.faults[i].RecoveredAt == nil {
			t := now
			m.faults[i].RecoveredAt = &t
			cleared = append(cleared, m.faults[i].Kind)
		}
	}
	m.faults = nil
	m.mu.Unlock()

	for _, kind := range cleared {
		m.emit(Event{Type: EventFaultCleared, Fault: kind, At: now})
	}
	m.logger.Info("faults acknowledged", "cleared", len(cleared), "source", cmd.Source)
	m.transition(StateUnknown, "command:"+string(cmd.Action))

	switch {
	case m.openActive && !m.closedActive:
		m.transition(StateOpen, "derived:open_switch")
	case m.closedActive && !m.openActive:
		m.transition(StateClosed, "derived:closed_switch")
	}
}

// ─── Travel, timers, faults ──────────────────────────────────────────────────

// beginTravel engages the actuator and enters the matching travel state.
// On a synchronous engage failure the machine faults instead.
func (m *Machine) beginTravel(dir Direction, trigger string) error {
	if err := m.driver.Engage(dir); err != nil {
		m.enterFault(FaultActuator, fmt.Sprintf("engage %s: %v", dir, err))
		return fmt.Errorf("engaging actuator: %w", err)
	}

	to := StateOpening
	if dir == DirectionReverse {
		to = StateClosing
	}

	m.travelSeq++
	seq := m.travelSeq
	m.travelTimer = time.AfterFunc(m.cfg.MaxTravel, func() {
		m.enqueue(message{kind: msgTravelTimeout, seq: seq})
	})

	m.mu.Lock()
	m.lastTravel = dir
	m.travelStarted = time.Now()
	m.mu.Unlock()

	m.transition(to, trigger)
	return nil
}

// endTravel cancels the travel timeout and clears the travel start mark.
// Bumping the sequence invalidates any expiry already in flight.
func (m *Machine) endTravel() {
	if m.travelTimer != nil {
		m.travelTimer.Stop()
		m.travelTimer = nil
	}
	m.travelSeq++
	m.mu.Lock()
	m.travelStarted = time.Time{}
	m.mu.Unlock()
}

// clearSettle cancels a queued opposing command.
func (m *Machine) clearSettle() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
	m.settleSeq++
	m.pending = nil
}

func (m *Machine) handleTravelTimeout(seq int) {
	if seq != m.travelSeq || !m.moving() {
		return
	}
	m.enterFault(FaultTimeout, fmt.Sprintf("no terminal sensor event within %s", m.cfg.MaxTravel))
}

func (m *Machine) handleSafetyStop(detail string) {
	if !m.moving() {
		// Race between the watchdog's snapshot and a just-finished travel.
		// Re-assert an idle actuator and move on.
		m.logger.Warn("safety stop while stationary", "detail", detail)
		m.disengage()
		return
	}
	m.enterFault(FaultSafetyOverride, detail)
}

// enterFault de-energises the actuator, records the fault, emits the fault
// event and enters StateFaulted. Safe to call from any state; when already
// Faulted it appends to the history without a state change.
func (m *Machine) enterFault(kind FaultKind, detail string) {
	m.endTravel()
	m.clearSettle()
	m.disengage()

	now := time.Now().UTC()
	m.mu.Lock()
	m.faults = append(m.faults, FaultRecord{Kind: kind, Detail: detail, DetectedAt: now})
	m.mu.Unlock()

	m.logger.Error("door fault", "kind", kind, "detail", detail)
	m.emit(Event{Type: EventFault, Fault: kind, Detail: detail, At: now})
	m.transition(StateFaulted, "fault:"+string(kind))
}

func (m *Machine) disengage() {
	if err := m.driver.Disengage(); err != nil {
		m.logger.Error("actuator disengage failed", "error", err)
	}
}

// obstructionClear reports whether the latest obstruction reading was clear
// and is still inside the freshness window.
func (m *Machine) obstructionClear() bool {
	m.mu.RLock()
	r := m.obstruction
	m.mu.RUnlock()
	return r.valid && !r.active && time.Since(r.at) <= m.cfg.ObstructionFreshness
}

// ─── Transitions and events ──────────────────────────────────────────────────

func (m *Machine) transition(to State, trigger string) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()

	m.logger.Info("door state changed", "from", from, "to", to, "trigger", trigger)
	m.emit(Event{
		Type:    EventStateChanged,
		From:    from,
		To:      to,
		Trigger: trigger,
		At:      time.Now().UTC(),
	})
}

func (m *Machine) reject(cmd Command, reason RejectReason) error {
	m.logger.Warn("command rejected",
		"action", cmd.Action,
		"reason", reason,
		"source", cmd.Source,
		"command_id", cmd.ID,
	)
	m.emit(Event{
		Type:      EventCommandRejected,
		Trigger:   "command:" + string(cmd.Action),
		Reason:    reason,
		CommandID: cmd.ID,
		At:        time.Now().UTC(),
	})
	return &RejectedError{Action: cmd.Action, Reason: reason}
}

func (m *Machine) emit(ev Event) {
	m.sink.Publish(ev)
}
