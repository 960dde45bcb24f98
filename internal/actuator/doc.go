// Package actuator drives the door motor through interchangeable
// backends behind the state machine's Driver seam.
//
//	machine ──Engage/Disengage──▶ ┌────────────┐
//	                              │ MQTTDriver │ Shelly pulse relays
//	                              ├────────────┤
//	                              │ GPIORelay  │ direct coil pair (Linux)
//	                              ├────────────┤
//	                              │ FakeDriver │ tests, no-hardware runs
//	                              └────────────┘
//
// Every backend embeds the same interlock: engaging one direction while
// the opposite is claimed fails fast with ErrOpposedDirection instead of
// energising both coils. The machine always disengages before reversing,
// so this error only ever surfaces a caller bug.
//
// The MQTT backend publishes the momentary-pulse convention understood
// by Shelly-class relays ("on,<seconds>"), and supports a dry-run mode
// that logs intents without touching the broker. The GPIO backend holds
// or pulses two output lines on a character device depending on whether
// the opener latches motion itself.
//
// Stall and overcurrent are reported asynchronously: real deployments
// detect them from the current sensor feed, the fake injects them
// through its fault handler.
package actuator
