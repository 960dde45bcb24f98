// Package influxdb ships door telemetry to InfluxDB v2. Four
// measurements cover the domain:
//
//	sensor_event      one point per debounced edge, tagged sensor and kind
//	sensor_telemetry  battery, link quality and similar device health
//	door_event        state transitions with their trigger
//	door_fault        faults raised and cleared
//
// The relational history answers "what happened"; these series answer
// "how has it been trending", travel-time drift over a cold month being
// the canonical example.
//
// Writes ride the library's batched non-blocking API. Nothing on the
// sensor or event path waits on the network, and batch failures surface
// through the SetOnError callback:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) {
//	    log.Warn("influxdb write failed", "error", err)
//	})
//
// The integration is optional. With it disabled in config, Connect
// returns ErrDisabled and the caller wires nothing.
package influxdb
