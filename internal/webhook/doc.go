// Package webhook delivers outbound HTTP notifications.
//
// Two pieces: Notifier performs bounded-timeout GET requests in the
// background and logs failures, nothing more. Announcer listens on the
// event bus and maps terminal door states onto the configured opened
// and closed URLs. The per-sensor occupancy and vacancy hooks are fired
// by the sensor bridges through the same Notifier.
//
// Delivery is strictly best-effort with no retries. Collaborators that
// need reliable event delivery belong on the MQTT event topics instead.
package webhook
