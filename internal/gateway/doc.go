// Package gateway is the boundary between the door core and its
// collaborators: a validating command funnel on the way in, an ordered
// event fan-out on the way out, and an MQTT adapter binding both to the
// broker.
//
//	MQTT ─────┐                          ┌─▶ history
//	schedule ─┼─▶ Gateway ─▶ machine ─▶ EventBus ─▶ webhooks
//	local ────┘   (uuid,                 ├─▶ telemetry
//	               dedup,                └─▶ MQTT state/event/fault
//	               FIFO)
//
// The Gateway stamps every command with a uuid and issue time and
// absorbs duplicates still in flight, so a retrying remote cannot stack
// identical commands in the machine's queue. Ordering between different
// commands is whatever order they reach the machine's serialized inbound
// queue, which is arrival order here.
//
// The EventBus delivers each event to subscribers sequentially in
// emission order and isolates panicking subscribers.
//
// # MQTT surface
//
//	garagedoor/door/command   inbound  {"action": "open", "source": "app"}
//	garagedoor/door/state     outbound, retained current state
//	garagedoor/door/event     outbound transitions and rejections
//	garagedoor/door/fault     outbound faults and clears
package gateway
