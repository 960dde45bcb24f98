// Package schedule fires door commands at sunrise and sunset.
//
// Each enabled trigger runs an independent loop:
//
//	compute next solar occurrence (+offset, tomorrow if already past)
//	sleep until it
//	fire the action through the command gateway
//	cool down, then recompute
//
// The cooldown guards the boundary condition where the solar calculation
// immediately after a fire lands within a minute of the event that just
// fired.
//
// The stock arrangement closes the door at sunrise and vents it at
// sunset. Vent is a composed motion: open, let the door travel for the
// configured vent duration, stop. The resulting partial gap is the
// overnight ventilation position.
//
// Commands go through the same gateway as remote collaborators, so
// scheduler traffic is deduplicated, stamped and recorded like any
// other. A rejection (door already closed at sunrise) is logged and
// ignored.
package schedule
