package actuator

import (
	"fmt"

	"github.com/nerrad567/garage-door-core/internal/door"
)

// Publisher is the MQTT operation the driver needs. Satisfied by
// *mqtt.Client; narrowed to an interface so tests can observe publishes.
type Publisher interface {
	PublishString(topic string, payload string, qos byte, retained bool) error
}

// MQTTOptions configures the momentary-pulse relay driver.
type MQTTOptions struct {
	// OpenTopic and CloseTopic are the per-direction relay command topics.
	OpenTopic  string
	CloseTopic string

	// PulseSeconds is the relay hold time encoded into the payload.
	// Defaults to 0.25, long enough for any opener head to register the
	// press.
	PulseSeconds float64

	// DryRun logs every intent without publishing. Interlock tracking
	// still runs so the full control path is exercised.
	DryRun bool
}

// MQTTDriver drives smart relays that accept momentary pulse commands
// (Shelly convention: payload "on,<seconds>"). Engage pulses the relay
// for the configured direction; Disengage publishes "off" to cut a pulse
// short. The relay de-energises itself when the pulse elapses, so a
// missed "off" cannot leave the motor powered.
type MQTTDriver struct {
	pub    Publisher
	opts   MQTTOptions
	logger Logger
	lock   interlock
}

// NewMQTTDriver creates a pulse driver over an established MQTT session.
func NewMQTTDriver(pub Publisher, opts MQTTOptions) *MQTTDriver {
	if opts.PulseSeconds <= 0 {
		opts.PulseSeconds = 0.25
	}
	return &MQTTDriver{
		pub:    pub,
		opts:   opts,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the driver. Call before use.
func (d *MQTTDriver) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Engage pulses the relay for the given direction. Fails fast when the
// opposite direction is still engaged.
func (d *MQTTDriver) Engage(dir door.Direction) error {
	topic, err := d.topicFor(dir)
	if err != nil {
		return err
	}
	if err := d.lock.engage(dir); err != nil {
		return err
	}

	payload := fmt.Sprintf("on,%g", d.opts.PulseSeconds)
	if d.opts.DryRun {
		d.logger.Info("dry run: actuator pulse suppressed",
			"direction", dir, "topic", topic, "payload", payload)
		return nil
	}
	if err := d.pub.PublishString(topic, payload, 1, false); err != nil {
		// Relay never energised; release the claim.
		d.lock.disengage()
		return fmt.Errorf("engage %s: %w", dir, err)
	}
	d.logger.Info("actuator engaged", "direction", dir, "topic", topic, "pulse_s", d.opts.PulseSeconds)
	return nil
}

// Disengage cuts any running pulse. Safe to call while idle.
func (d *MQTTDriver) Disengage() error {
	prev := d.lock.disengage()
	if prev == "" {
		return nil
	}
	topic, err := d.topicFor(prev)
	if err != nil {
		return err
	}
	if d.opts.DryRun {
		d.logger.Info("dry run: actuator off suppressed", "direction", prev, "topic", topic)
		return nil
	}
	if err := d.pub.PublishString(topic, "off", 1, false); err != nil {
		return fmt.Errorf("disengage %s: %w", prev, err)
	}
	d.logger.Info("actuator disengaged", "direction", prev, "topic", topic)
	return nil
}

// Engaged reports the currently claimed direction, empty when idle.
func (d *MQTTDriver) Engaged() door.Direction {
	return d.lock.current()
}

func (d *MQTTDriver) topicFor(dir door.Direction) (string, error) {
	var topic string
	switch dir {
	case door.DirectionForward:
		topic = d.opts.OpenTopic
	case door.DirectionReverse:
		topic = d.opts.CloseTopic
	default:
		return "", fmt.Errorf("no relay topic for direction %q", dir)
	}
	if topic == "" {
		return "", fmt.Errorf("no relay topic configured for direction %s", dir)
	}
	return topic, nil
}
