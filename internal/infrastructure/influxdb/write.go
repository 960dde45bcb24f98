package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Every writer below is non-blocking: the point joins the current batch
// and the call returns. Writes against a closed client are dropped.

// WriteSensorEvent records one debounced sensor edge, tagged with the
// configured sensor name and its kind so dashboards can split traffic
// per device.
func (c *Client) WriteSensorEvent(sensor, kind string, active bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		"sensor_event",
		map[string]string{"sensor": sensor, "kind": kind},
		map[string]interface{}{"active": active},
		time.Now(),
	))
}

// WriteSensorTelemetry records device health reported alongside sensor
// state: battery percentage, link quality, voltage and whatever else
// the radio sensor includes. Empty field sets are dropped.
func (c *Client) WriteSensorTelemetry(sensor string, fields map[string]interface{}) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		"sensor_telemetry",
		map[string]string{"sensor": sensor},
		fields,
		time.Now(),
	))
}

// WriteDoorTransition records one state transition with its trigger,
// the raw material for travel-time and cycle-count dashboards.
func (c *Client) WriteDoorTransition(fromState, toState, trigger string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		"door_event",
		map[string]string{"from_state": fromState, "to_state": toState},
		map[string]interface{}{"trigger": trigger, "value": 1},
		time.Now(),
	))
}

// WriteFault records a fault being raised (active true) or cleared by
// an acknowledge (active false).
func (c *Client) WriteFault(kind string, active bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		"door_fault",
		map[string]string{"kind": kind},
		map[string]interface{}{"active": active},
		time.Now(),
	))
}
