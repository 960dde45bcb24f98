package mqtt

// Topic layout for the controller's MQTT surface. Door traffic lives
// under garagedoor/door, liveness under garagedoor/system. Sensor and
// relay topics belong to zigbee2mqtt and the relay firmware; those come
// from configuration, not from these builders.
const (
	doorPrefix   = "garagedoor/door"
	systemPrefix = "garagedoor/system"
)

// Topics builds the controller's topic names. The zero value works:
//
//	mqtt.Topics{}.DoorState() // "garagedoor/door/state"
type Topics struct{}

// DoorState is the canonical state topic. The current state is
// published here retained, so late subscribers see it immediately.
func (Topics) DoorState() string { return doorPrefix + "/state" }

// DoorEvent carries transitions, rejections and sensor edges.
func (Topics) DoorEvent() string { return doorPrefix + "/event" }

// DoorFault carries fault raises and clears.
func (Topics) DoorFault() string { return doorPrefix + "/fault" }

// DoorCommand is the inbound topic remote callers publish commands to.
func (Topics) DoorCommand() string { return doorPrefix + "/command" }

// SystemStatus carries the retained online/offline payloads, including
// the LWT the broker publishes on a crash.
func (Topics) SystemStatus() string { return systemPrefix + "/status" }
