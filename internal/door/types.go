package door

import "time"

// State is the authoritative door position asserted by the state machine.
type State string

const (
	// StateUnknown holds at cold start before the first sensor confirmation,
	// and whenever the position switches disagree.
	StateUnknown State = "unknown"

	// StateOpen means the open limit switch has confirmed the fully open position.
	StateOpen State = "open"

	// StateClosed means the closed limit switch has confirmed the fully closed position.
	StateClosed State = "closed"

	// StateOpening means the actuator is engaged in the opening direction.
	StateOpening State = "opening"

	// StateClosing means the actuator is engaged in the closing direction.
	StateClosing State = "closing"

	// StateStoppedPartial means the door was halted between the limit switches.
	// It is sticky: only a new command or a limit-switch confirmation resolves it.
	StateStoppedPartial State = "stopped_partial"

	// StateFaulted is a recoverable sink entered on hardware faults, travel
	// timeouts and safety overrides. Only an acknowledge command exits it.
	StateFaulted State = "faulted"
)

// SensorKind identifies which physical signal a sensor event carries.
type SensorKind string

const (
	SensorOpenSwitch   SensorKind = "open_switch"
	SensorClosedSwitch SensorKind = "closed_switch"
	SensorObstruction  SensorKind = "obstruction"
	SensorCurrentSpike SensorKind = "current"
)

// SensorEvent is a debounced, discrete signal transition (or periodic level
// confirmation for the obstruction beam) delivered by a sensor reader.
type SensorEvent struct {
	Kind   SensorKind `json:"kind"`
	Sensor string     `json:"sensor"` // originating sensor name, for logging and telemetry
	Active bool       `json:"active"`
	At     time.Time  `json:"at"`
}

// Action is the verb of an inbound command.
type Action string

const (
	ActionOpen        Action = "open"
	ActionClose       Action = "close"
	ActionStop        Action = "stop"
	ActionToggle      Action = "toggle"
	ActionAcknowledge Action = "acknowledge"
)

// ParseAction validates a raw action string from an external source.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionOpen, ActionClose, ActionStop, ActionToggle, ActionAcknowledge:
		return Action(s), nil
	default:
		return "", ErrUnknownAction
	}
}

// Command is a validated request to change the door's state.
type Command struct {
	ID       string    `json:"id"`
	Action   Action    `json:"action"`
	Source   string    `json:"source"` // mqtt, schedule, api, etc.
	IssuedAt time.Time `json:"issued_at"`
}

// Direction is the actuator travel direction. Forward is opening travel,
// Reverse is closing travel.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
	DirectionIdle    Direction = "idle"
)

// FaultKind classifies a fault that forced the machine into StateFaulted.
type FaultKind string

const (
	// FaultTimeout means no terminal sensor event arrived within the
	// maximum travel duration.
	FaultTimeout FaultKind = "timeout"

	// FaultStall and FaultOvercurrent are motor faults reported
	// asynchronously by the actuator backend.
	FaultStall       FaultKind = "stall"
	FaultOvercurrent FaultKind = "overcurrent"

	// FaultSensorDropout means a sensor stopped reporting while motion
	// was expected.
	FaultSensorDropout FaultKind = "sensor_dropout"

	// FaultSafetyOverride means the independent watchdog forced a stop.
	FaultSafetyOverride FaultKind = "safety_override"

	// FaultActuator means a synchronous engage or disengage call failed.
	FaultActuator FaultKind = "actuator"
)

// FaultRecord is one entry in the machine's in-memory fault history.
// The history is append-only and reset on explicit acknowledge.
type FaultRecord struct {
	Kind        FaultKind  `json:"kind"`
	Detail      string     `json:"detail,omitempty"`
	DetectedAt  time.Time  `json:"detected_at"`
	RecoveredAt *time.Time `json:"recovered_at,omitempty"`
}

// RejectReason is the typed reason attached to a rejected command.
type RejectReason string

const (
	// RejectObstructionUnclear: the obstruction sensor has not reported
	// clear within the configured freshness window.
	RejectObstructionUnclear RejectReason = "obstruction_unclear"

	// RejectAlreadyInState: the door is already where the command asks it to be.
	RejectAlreadyInState RejectReason = "already_in_state"

	// RejectDeviceFaulted: the machine is in StateFaulted and only accepts
	// an acknowledge.
	RejectDeviceFaulted RejectReason = "device_faulted"

	// RejectPositionUnknown: motion commands are refused while the door
	// position has not been confirmed by a sensor.
	RejectPositionUnknown RejectReason = "position_unknown"

	// RejectNotFaulted: an acknowledge arrived but there is nothing to clear.
	RejectNotFaulted RejectReason = "not_faulted"
)

// EventType discriminates entries in the outbound event stream.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventFault           EventType = "fault"
	EventFaultCleared    EventType = "fault_cleared"
	EventCommandRejected EventType = "command_rejected"
)

// Event is one entry in the machine's ordered outbound stream. Which fields
// are populated depends on Type: StateChanged carries From/To/Trigger, Fault
// and FaultCleared carry Fault (and Detail for faults), CommandRejected
// carries Reason and CommandID.
type Event struct {
	Type      EventType    `json:"type"`
	From      State        `json:"from,omitempty"`
	To        State        `json:"to,omitempty"`
	Trigger   string       `json:"trigger,omitempty"` // e.g. "command:open", "sensor:closed_switch", "obstruction_reverse"
	Fault     FaultKind    `json:"fault,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Reason    RejectReason `json:"reason,omitempty"`
	CommandID string       `json:"command_id,omitempty"`
	At        time.Time    `json:"at"`
}

// Snapshot is a point-in-time copy of the machine's observable state,
// safe to read from any goroutine. The safety monitor and the MQTT status
// publisher consume it.
type Snapshot struct {
	State             State
	LastDirection     Direction // direction of the most recent travel
	TravelStarted     time.Time // zero unless Opening or Closing
	ObstructionActive bool
	ObstructionAt     time.Time // zero until the first obstruction reading
	FaultCount        int       // unrecovered faults in the current history
}

// Config carries the state machine's timing and policy settings.
// Zero durations are replaced with defaults; AutoReverse is taken as given.
type Config struct {
	// MaxTravel bounds every Opening/Closing interval. Exceeding it forces
	// FaultTimeout and a disengage.
	MaxTravel time.Duration

	// ObstructionFreshness is the maximum age of an obstruction reading
	// still considered valid for permitting closure.
	ObstructionFreshness time.Duration

	// SettleDelay is how long the machine holds a queued opposing command
	// after stopping mid-travel, before running it through the normal guards.
	SettleDelay time.Duration

	// AutoReverse reverses a closing door on obstruction instead of
	// stopping it.
	AutoReverse bool
}

// DefaultConfig returns the stock timings: 20s max travel, 500ms obstruction
// freshness, 1s settle delay, auto-reverse enabled.
func DefaultConfig() Config {
	return Config{
		MaxTravel:            20 * time.Second,
		ObstructionFreshness: 500 * time.Millisecond,
		SettleDelay:          time.Second,
		AutoReverse:          true,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxTravel <= 0 {
		c.MaxTravel = def.MaxTravel
	}
	if c.ObstructionFreshness <= 0 {
		c.ObstructionFreshness = def.ObstructionFreshness
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = def.SettleDelay
	}
}
