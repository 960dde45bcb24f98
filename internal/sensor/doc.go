// Package sensor ingests raw position and obstruction signals and turns
// them into debounced events for the door state machine.
//
//	┌───────────────┐
//	│ zigbee bridge │──┐
//	├───────────────┤  │   Ingest()   ┌─────────┐  debounced   ┌─────────┐
//	│ gpio poller   │──┼─────────────▶│ Reader  │─────────────▶│ machine │
//	├───────────────┤  │              └─────────┘  SensorEvent └─────────┘
//	│ fake source   │──┘                   │
//	└───────────────┘                      └──▶ dropout faults
//
// Backends implement Source and push Samples; the Reader owns all
// filtering so every backend stays a dumb transport.
//
// # Debouncing
//
// A level change must hold for the configured debounce duration before it
// is believed. Polled backends confirm the pending level with their next
// samples; sparse backends such as zigbee2mqtt may send a single message
// per transition, so a timer commits the pending level once the duration
// has elapsed without a contradicting sample. Either path emits exactly
// one event per physical transition.
//
// # Roles
//
// Several physical sensors may share one role. Their stable levels are
// combined with OR: a role is active while any of its sensors is active.
// Redundant beam receivers therefore block the door if either one trips.
//
// # Obstruction freshness
//
// The machine only trusts an obstruction-clear reading younger than its
// freshness window. The Reader re-emits the current obstruction level
// when a genuine sample confirms it, throttled to ObstructionRefresh, and
// stamps the event with the hardware read time. It never invents a
// reading for a sensor that has gone quiet, so a dead beam naturally
// ages out and the machine refuses to close.
//
// # Dropout
//
// While the door travels, the position switches are expected to change
// within the dropout window. SetMotionExpected arms the watchdog; silence
// beyond the window raises a sensor dropout fault through the registered
// fault handler, once per travel.
//
// # Usage
//
//	reader := sensor.NewReader(cfg, machine.HandleSensorEvent)
//	reader.SetLogger(logger)
//	reader.SetFaultHandler(machine.ReportFault)
//	reader.Start(ctx)
//
//	source := sensor.NewGPIOSource("gpiochip0", 25*time.Millisecond, lines)
//	if err := source.Start(ctx, reader.Ingest); err != nil {
//		return err
//	}
//	defer source.Close()
package sensor
