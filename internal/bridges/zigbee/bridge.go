package zigbee

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/garage-door-core/internal/door"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/garage-door-core/internal/sensor"
)

// DeviceKind selects the payload schema a device speaks.
type DeviceKind string

const (
	// KindContact is a magnetic contact sensor publishing a "contact"
	// boolean: true while the magnet is present.
	KindContact DeviceKind = "contact"

	// KindMotion is an occupancy sensor publishing an "occupancy" boolean.
	KindMotion DeviceKind = "motion"
)

// Device maps one zigbee2mqtt state topic onto a door sensor signal.
type Device struct {
	// Topic is the device's zigbee2mqtt state topic,
	// e.g. "zigbee2mqtt/garage-closed-contact".
	Topic string

	// Name identifies the device in logs, samples and telemetry.
	Name string

	// Role is the door signal this device feeds.
	Role door.SensorKind

	// Invert flips the parsed signal before it becomes a sample. Used for
	// normally-closed wiring, such as a beam that reports contact while
	// the path is clear.
	Invert bool

	// Kind selects the payload schema.
	Kind DeviceKind

	// ActiveWebhook and InactiveWebhook are optional URLs fired after
	// each successfully parsed signal, selected by the post-inversion
	// level. Empty URLs are skipped.
	ActiveWebhook   string
	InactiveWebhook string
}

// MQTTClient is the broker surface the bridge needs, narrowed so tests can
// deliver messages directly. Satisfied by *mqtt.Client.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// TelemetrySink records sensor signals and device health readings.
// Satisfied by *influxdb.Client.
type TelemetrySink interface {
	WriteSensorEvent(sensor string, kind string, active bool)
	WriteSensorTelemetry(sensor string, fields map[string]interface{})
}

// WebhookCaller fires outbound notification URLs without blocking.
// Satisfied by *webhook.Notifier.
type WebhookCaller interface {
	Fire(url string)
}

// Logger defines the logging interface used by the zigbee package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge subscribes to zigbee2mqtt state topics and turns each device
// document into a raw sensor sample. It implements sensor.Source.
//
// Every accepted signal additionally fires the device's configured webhook
// and is recorded to the telemetry sink together with the device health
// fields from the same payload. A payload whose health fields are
// incomplete still produces the sample; only the telemetry write is
// skipped. A payload whose signal field is missing or mistyped is dropped
// whole.
type Bridge struct {
	client    MQTTClient
	devices   map[string]Device // keyed by topic, immutable after New
	telemetry TelemetrySink
	hooks     WebhookCaller
	logger    Logger

	mu   sync.Mutex
	emit func(sensor.Sample)

	closeOnce sync.Once
	closeErr  error
}

// New builds a bridge for the given devices. Devices must have distinct,
// non-empty topics and a known kind.
func New(client MQTTClient, devices []Device) (*Bridge, error) {
	if client == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	byTopic := make(map[string]Device, len(devices))
	for _, d := range devices {
		if d.Topic == "" {
			return nil, fmt.Errorf("device %q has no topic", d.Name)
		}
		if d.Kind != KindContact && d.Kind != KindMotion {
			return nil, fmt.Errorf("device %q has unknown kind %q", d.Name, d.Kind)
		}
		if _, exists := byTopic[d.Topic]; exists {
			return nil, fmt.Errorf("duplicate device topic %q", d.Topic)
		}
		if d.Name == "" {
			d.Name = d.Topic
		}
		byTopic[d.Topic] = d
	}
	return &Bridge{
		client:  client,
		devices: byTopic,
		logger:  noopLogger{},
	}, nil
}

// SetLogger replaces the default no-op logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// SetTelemetry wires a telemetry sink. Call before Start.
func (b *Bridge) SetTelemetry(sink TelemetrySink) {
	b.telemetry = sink
}

// SetWebhooks wires a webhook caller. Call before Start.
func (b *Bridge) SetWebhooks(hooks WebhookCaller) {
	b.hooks = hooks
}

// Start subscribes every device topic and begins delivering samples to
// emit. Subscriptions are released when ctx is cancelled or Close is
// called, whichever comes first.
func (b *Bridge) Start(ctx context.Context, emit func(sensor.Sample)) error {
	b.mu.Lock()
	b.emit = emit
	b.mu.Unlock()

	for topic := range b.devices {
		if err := b.client.Subscribe(topic, 0, b.handleMessage); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	b.logger.Info("zigbee bridge started", "devices", len(b.devices))

	go func() {
		<-ctx.Done()
		b.Close()
	}()
	return nil
}

// Close unsubscribes every device topic.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		for topic := range b.devices {
			if err := b.client.Unsubscribe(topic); err != nil {
				errs = append(errs, fmt.Errorf("unsubscribe %s: %w", topic, err))
			}
		}
		if len(errs) > 0 {
			b.closeErr = fmt.Errorf("close errors: %v", errs)
		}
	})
	return b.closeErr
}

// handleMessage processes one state document from a subscribed topic. The
// returned error surfaces through the MQTT client's handler wrapper; the
// bridge has already logged the cause.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	dev, ok := b.devices[topic]
	if !ok {
		b.logger.Warn("message on unmapped topic", "topic", topic)
		return fmt.Errorf("no device mapped to topic %q", topic)
	}

	doc, err := parsePayload(payload)
	if err != nil {
		b.logger.Warn("dropping malformed sensor payload",
			"topic", topic,
			"sensor", dev.Name,
			"error", err,
		)
		return err
	}

	var signal bool
	switch dev.Kind {
	case KindContact:
		signal, err = getBool(doc, "contact")
	case KindMotion:
		signal, err = getBool(doc, "occupancy")
	}
	if err != nil {
		b.logger.Warn("dropping sensor payload without signal",
			"topic", topic,
			"sensor", dev.Name,
			"error", err,
		)
		return err
	}

	active := signal != dev.Invert
	b.logger.Debug("sensor signal",
		"sensor", dev.Name,
		"role", dev.Role,
		"active", active,
	)

	b.mu.Lock()
	emit := b.emit
	b.mu.Unlock()
	if emit != nil {
		emit(sensor.Sample{
			Role:   dev.Role,
			Sensor: dev.Name,
			Active: active,
			At:     time.Now(),
		})
	}

	b.fireWebhook(dev, active)
	b.recordTelemetry(dev, doc, active)
	return nil
}

// fireWebhook notifies the URL configured for the signal level, if any.
func (b *Bridge) fireWebhook(dev Device, active bool) {
	if b.hooks == nil {
		return
	}
	url := dev.InactiveWebhook
	if active {
		url = dev.ActiveWebhook
	}
	if url == "" {
		return
	}
	b.hooks.Fire(url)
}

// recordTelemetry writes the signal edge and, when the payload carries the
// full health field set, the device telemetry point.
func (b *Bridge) recordTelemetry(dev Device, doc map[string]any, active bool) {
	if b.telemetry == nil {
		return
	}
	b.telemetry.WriteSensorEvent(dev.Name, string(dev.Role), active)

	var fields map[string]interface{}
	var err error
	switch dev.Kind {
	case KindContact:
		fields, err = contactFields(doc)
	case KindMotion:
		fields, err = motionFields(doc)
	}
	if err != nil {
		b.logger.Debug("sensor telemetry incomplete",
			"sensor", dev.Name,
			"error", err,
		)
		return
	}
	b.telemetry.WriteSensorTelemetry(dev.Name, fields)
}

// contactFields extracts the health readings a contact sensor reports with
// every state document. All fields are required; aqara firmware always
// sends the full set once the device has joined.
func contactFields(doc map[string]any) (map[string]interface{}, error) {
	battery, err := getInt(doc, "battery")
	if err != nil {
		return nil, err
	}
	isContact, err := getBool(doc, "contact")
	if err != nil {
		return nil, err
	}
	link, err := getInt(doc, "linkquality")
	if err != nil {
		return nil, err
	}
	outages, err := getInt(doc, "power_outage_count")
	if err != nil {
		return nil, err
	}
	tempC, err := getInt(doc, "device_temperature")
	if err != nil {
		return nil, err
	}
	voltageMV, err := getInt(doc, "voltage")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"battery_percent":    battery,
		"is_contact":         isContact,
		"link_quality":       link,
		"power_outage_count": outages,
		"temperature_c":      tempC,
		"voltage_mv":         voltageMV,
	}, nil
}

// motionFields extracts the health readings a motion sensor reports.
// Battery, occupancy and link quality are always present; illuminance and
// occupancy timeout depend on the device model and are recorded when sent.
func motionFields(doc map[string]any) (map[string]interface{}, error) {
	battery, err := getInt(doc, "battery")
	if err != nil {
		return nil, err
	}
	isOccupied, err := getBool(doc, "occupancy")
	if err != nil {
		return nil, err
	}
	link, err := getInt(doc, "linkquality")
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"battery_percent": battery,
		"is_occupied":     isOccupied,
		"link_quality":    link,
	}
	if lux, ok, err := optionalInt(doc, "illuminance_lux"); err != nil {
		return nil, err
	} else if ok {
		fields["illuminance_lux"] = lux
	}
	if raw, ok, err := optionalInt(doc, "illuminance"); err != nil {
		return nil, err
	} else if ok {
		fields["illuminance"] = raw
	}
	if timeout, ok, err := optionalInt(doc, "occupancy_timeout"); err != nil {
		return nil, err
	} else if ok {
		fields["occupancy_timeout_s"] = timeout
	}
	return fields, nil
}
