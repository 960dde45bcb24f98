// Package zigbee ingests zigbee2mqtt sensor state documents and feeds them
// into the door pipeline as raw sensor samples.
//
// Topology:
//
//	zigbee2mqtt/<device> ──> Bridge ──> sensor.Reader (debounce)
//	                           │
//	                           ├──> webhooks (per-device URLs)
//	                           └──> telemetry (signal edge + device health)
//
// The bridge is deliberately dumb about door semantics: it maps each
// configured topic to a sensor role, extracts the one boolean that matters
// for that device kind ("contact" or "occupancy"), applies the wiring
// inversion and hands the level to the reader. Debouncing, aggregation and
// freshness tracking all live in the sensor package.
//
// # Parsing discipline
//
// Payloads are parsed strictly. The signal field must be present and a
// boolean; telemetry fields must be integers. A payload failing the signal
// check is logged and dropped whole. A payload whose health fields are
// incomplete still yields the sample, because door position must not
// depend on a battery report; only the telemetry point is skipped.
//
// # Device health
//
// Contact sensors report battery, link quality, voltage, device
// temperature and power outage count with every document; motion sensors
// report battery, link quality and model-dependent illuminance fields.
// All of it lands in the telemetry sink for dashboards, none of it is ever
// consulted by the state machine.
package zigbee
