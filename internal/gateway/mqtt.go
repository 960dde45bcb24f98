package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/mqtt"
)

// MQTTClient is the broker surface the adapter needs. Satisfied by
// *mqtt.Client; narrowed so tests can observe traffic.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// commandPayload is the JSON remote callers publish to the command topic.
type commandPayload struct {
	Action string `json:"action"`
	Source string `json:"source"`
}

// statePayload is the retained door state document.
type statePayload struct {
	State door.State `json:"state"`
	At    time.Time  `json:"at"`
}

// MQTTAdapter exposes the door over the broker: it subscribes the
// command topic and republishes the machine's event stream onto the
// state, event and fault topics.
//
// The state topic is retained so late subscribers immediately learn the
// current position; events and faults are fire-and-forget notifications.
type MQTTAdapter struct {
	client MQTTClient
	gw     *Gateway
	logger Logger
	topics mqtt.Topics
}

// NewMQTTAdapter creates an adapter over an established broker session.
func NewMQTTAdapter(client MQTTClient, gw *Gateway) *MQTTAdapter {
	return &MQTTAdapter{
		client: client,
		gw:     gw,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the adapter. Call before Start.
func (a *MQTTAdapter) SetLogger(logger Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// Start subscribes the command topic. Event publishing needs no start:
// register HandleEvent on the bus.
func (a *MQTTAdapter) Start() error {
	topic := a.topics.DoorCommand()
	if err := a.client.Subscribe(topic, 1, a.handleCommand); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	a.logger.Info("command topic subscribed", "topic", topic)
	return nil
}

// HandleEvent republishes one machine event onto the broker. Register it
// as a bus subscriber.
func (a *MQTTAdapter) HandleEvent(ev door.Event) {
	switch ev.Type {
	case door.EventStateChanged:
		a.publishJSON(a.topics.DoorState(), statePayload{State: ev.To, At: ev.At}, true)
		a.publishJSON(a.topics.DoorEvent(), ev, false)
	case door.EventFault, door.EventFaultCleared:
		a.publishJSON(a.topics.DoorFault(), ev, false)
	case door.EventCommandRejected:
		a.publishJSON(a.topics.DoorEvent(), ev, false)
	}
}

func (a *MQTTAdapter) handleCommand(topic string, payload []byte) error {
	var msg commandPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		a.logger.Warn("malformed command payload", "topic", topic, "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	action, err := door.ParseAction(msg.Action)
	if err != nil {
		a.logger.Warn("unknown command action", "action", msg.Action)
		return err
	}

	source := "mqtt"
	if msg.Source != "" {
		source = "mqtt:" + msg.Source
	}

	if err := a.gw.Submit(action, source); err != nil {
		// Rejections are normal control flow; the machine has already
		// logged and emitted them.
		if errors.Is(err, door.ErrRejected) {
			return nil
		}
		return err
	}
	return nil
}

func (a *MQTTAdapter) publishJSON(topic string, v any, retained bool) {
	b, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("event marshal failed", "topic", topic, "error", err)
		return
	}
	if err := a.client.Publish(topic, b, 1, retained); err != nil {
		a.logger.Error("event publish failed", "topic", topic, "error", err)
	}
}
