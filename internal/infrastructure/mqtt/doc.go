// Package mqtt is the controller's connection to the Mosquitto broker.
//
// Everything outside the process speaks MQTT: zigbee2mqtt publishes
// contact and occupancy sensor frames, Shelly relays take actuation
// commands, and remote clients issue door commands and read door
// state. The broker decouples all of them from the controller.
//
//	zigbee2mqtt sensors ─┐
//	                     ├─ broker ── garage-door-core ── broker ── Shelly relays
//	remote commands ─────┘
//
// The client keeps the session alive on its own. Paho reconnects with
// exponential backoff between the configured delays, and subscriptions
// made through Subscribe are replayed on every reconnect. Liveness is
// visible on the retained system status topic: "online" after each
// connect, "offline" with reason "graceful_shutdown" on Close, and an
// LWT carrying reason "unexpected_disconnect" when the broker loses
// the session.
//
// Handlers passed to Subscribe run on paho's delivery goroutines.
// Panics are recovered and logged so one bad handler cannot stop
// message delivery for the rest.
//
// TLS with broker credentials is expected outside local development;
// payloads themselves carry no secrets.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.DoorCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command: %s", payload)
//	        return nil
//	    })
package mqtt
