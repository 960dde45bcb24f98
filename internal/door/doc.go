// Package door implements the door control state machine and
// safety-interlock engine for Garage Door Core.
//
// The Machine is the single authority over the asserted door position. It
// reconciles debounced sensor events with commands, decides when to engage
// or disengage the actuator, enforces the travel timeout and the
// obstruction guard, and emits an ordered outbound event stream.
//
// Architecture:
//
//	sensor readers ──┐
//	commands ────────┤
//	driver faults ───┼──> single ordered queue ──> control loop (one goroutine)
//	safety monitor ──┤                                    │
//	timer expiries ──┘                                    ├──> Driver (engage/disengage)
//	                                                      └──> EventSink (ordered stream)
//
// All state mutation happens on the control-loop goroutine; everything else
// only enqueues messages or reads a mutex-guarded snapshot. That total
// ordering is what makes the transition table deterministic.
//
// # States
//
// Unknown, Open, Closed, Opening, Closing, StoppedPartial and Faulted.
// The machine starts in Unknown and never assumes a position without a
// corroborating sensor event. Faulted is a recoverable sink: every path
// into it de-energises the actuator first, and only an acknowledge command
// exits it, back through Unknown with the position re-derived from the
// latest switch readings.
//
// # Guards
//
//   - Closing only begins when the obstruction sensor has reported clear
//     within the configured freshness window.
//   - An opposing directional command while moving stops the door first and
//     queues the command behind a settle delay.
//   - Every Opening/Closing interval is bounded by the maximum travel
//     duration; exceeding it forces a timeout fault.
//   - The Monitor watchdog independently re-checks the travel bound and
//     obstruction freshness, and can force a stop through the same queue.
//
// # Usage
//
//	machine := door.New(driver, door.Config{
//	    MaxTravel:            20 * time.Second,
//	    ObstructionFreshness: 500 * time.Millisecond,
//	    SettleDelay:          time.Second,
//	    AutoReverse:          true,
//	})
//	machine.SetLogger(log)
//	machine.SetEventSink(bus)
//	machine.Start(ctx)
//
//	monitor := door.NewMonitor(machine, door.MonitorConfig{})
//	monitor.Start(ctx)
//
//	err := machine.SubmitCommand(door.Command{Action: door.ActionOpen, Source: "mqtt"})
package door
