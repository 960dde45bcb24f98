package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Garage Door Core.
// It is populated from YAML with GARAGEDOOR_* environment overrides on top.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Door     DoorConfig     `yaml:"door"`
	Safety   SafetyConfig   `yaml:"safety"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig identifies the installation and where it sits.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig holds the coordinates used for sunrise and sunset times.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DoorConfig contains the door motion policy settings.
//
// These are the knobs the state machine consults on every transition.
// All durations are in milliseconds unless noted otherwise.
type DoorConfig struct {
	// MaxTravelMS bounds a single Opening/Closing interval. Exceeding it
	// forces a Timeout fault and disengages the actuator.
	MaxTravelMS int `yaml:"max_travel_ms"`

	// ObstructionFreshnessMS is the maximum age of an obstruction-clear
	// reading still considered valid when permitting closure.
	ObstructionFreshnessMS int `yaml:"obstruction_freshness_ms"`

	// DebounceMS is the minimum stable duration before a raw sensor
	// transition is accepted as real.
	DebounceMS int `yaml:"debounce_ms"`

	// SettleDelayMS is how long the door is given to come to rest after a
	// forced stop before a queued opposing command is executed.
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// DropoutWindowMS is how long the reader tolerates total sensor
	// silence during expected motion before reporting a dropout.
	DropoutWindowMS int `yaml:"dropout_window_ms"`

	// VentTravelMS is the travel time from Closed to the ventilation
	// position used by the schedule's vent action.
	VentTravelMS int `yaml:"vent_travel_ms"`

	// AutoReverseOnObstruction reverses a closing door on obstruction when
	// true; when false the door is stopped instead.
	AutoReverseOnObstruction bool `yaml:"auto_reverse_on_obstruction"`
}

// SafetyConfig contains the independent safety watchdog settings.
type SafetyConfig struct {
	// CheckIntervalMS is the watchdog evaluation cadence.
	CheckIntervalMS int `yaml:"check_interval_ms"`

	// TravelGraceMS is added to the door's max travel before the watchdog
	// forces a stop on its own. It only matters if the state machine's
	// internal timer failed to fire.
	TravelGraceMS int `yaml:"travel_grace_ms"`
}

// SensorsConfig selects and configures the position/obstruction sensor backend.
type SensorsConfig struct {
	// Backend is "zigbee", "gpio", or "fake".
	Backend string `yaml:"backend"`

	// Zigbee lists zigbee2mqtt devices feeding the reader.
	Zigbee []ZigbeeSensorConfig `yaml:"zigbee"`

	// GPIO configures direct reed-switch and beam wiring.
	GPIO GPIOSensorConfig `yaml:"gpio"`
}

// Sensor roles understood by the reader.
const (
	RoleOpenSwitch   = "open_switch"
	RoleClosedSwitch = "closed_switch"
	RoleObstruction  = "obstruction"
	RoleCurrent      = "current"
)

// ZigbeeSensorConfig maps one zigbee2mqtt device onto a sensor role.
type ZigbeeSensorConfig struct {
	// Topic is the device's zigbee2mqtt state topic.
	Topic string `yaml:"topic"`

	// Name is a human-readable identifier used in logs and telemetry.
	Name string `yaml:"name"`

	// Role is one of open_switch, closed_switch, obstruction, current.
	Role string `yaml:"role"`

	// Kind is "contact" or "motion" and selects the payload schema.
	Kind string `yaml:"kind"`

	// Invert flips the parsed signal (for beams wired normally closed).
	Invert bool `yaml:"invert"`

	// ActiveWebhook and InactiveWebhook are optional URLs fired on the
	// debounced signal edges.
	ActiveWebhook   string `yaml:"active_webhook,omitempty"`
	InactiveWebhook string `yaml:"inactive_webhook,omitempty"`
}

// GPIOSensorConfig configures the Linux GPIO character device backend.
type GPIOSensorConfig struct {
	Chip           string           `yaml:"chip"`
	PollIntervalMS int              `yaml:"poll_interval_ms"`
	Lines          []GPIOLineConfig `yaml:"lines"`
}

// GPIOLineConfig maps one GPIO line onto a sensor role.
type GPIOLineConfig struct {
	Line      int    `yaml:"line"`
	Name      string `yaml:"name"`
	Role      string `yaml:"role"`
	ActiveLow bool   `yaml:"active_low"`
}

// ActuatorConfig selects and configures the motor drive backend.
type ActuatorConfig struct {
	// Backend is "mqtt", "gpio", or "fake".
	Backend string `yaml:"backend"`

	// DryRun logs actuator intents without driving hardware.
	DryRun bool `yaml:"dry_run"`

	MQTT MQTTActuatorConfig `yaml:"mqtt"`
	GPIO GPIOActuatorConfig `yaml:"gpio"`
}

// MQTTActuatorConfig drives smart relays that accept momentary pulse
// commands (Shelly convention: payload "on,<seconds>").
type MQTTActuatorConfig struct {
	OpenTopic    string  `yaml:"open_topic"`
	CloseTopic   string  `yaml:"close_topic"`
	PulseSeconds float64 `yaml:"pulse_seconds"`
}

// GPIOActuatorConfig drives a two-relay pair directly.
type GPIOActuatorConfig struct {
	Chip      string `yaml:"chip"`
	OpenLine  int    `yaml:"open_line"`
	CloseLine int    `yaml:"close_line"`
	PulseMS   int    `yaml:"pulse_ms"`
}

// GatewayConfig contains the remote command and event adapter settings.
type GatewayConfig struct {
	// MQTTEnabled exposes the command topic and state/event topics over MQTT.
	MQTTEnabled bool `yaml:"mqtt_enabled"`
}

// ScheduleConfig contains the sunrise/sunset trigger settings.
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled"`

	Sunrise ScheduleEventConfig `yaml:"sunrise"`
	Sunset  ScheduleEventConfig `yaml:"sunset"`

	// CooldownMinutes is the pause after each fire before the next solar
	// event is computed. Guards against recomputing the same event while
	// the sun is still at the trigger boundary.
	CooldownMinutes int `yaml:"cooldown_minutes"`
}

// Schedule actions understood by the scheduler.
const (
	ScheduleActionClose = "close"
	ScheduleActionOpen  = "open"
	ScheduleActionVent  = "vent"
	ScheduleActionNone  = "none"
)

// ScheduleEventConfig configures one solar trigger.
type ScheduleEventConfig struct {
	// Action is close, open, vent or none.
	Action string `yaml:"action"`

	// OffsetMinutes shifts the trigger relative to the solar event.
	// Negative values fire before it.
	OffsetMinutes int `yaml:"offset_minutes"`
}

// WebhookConfig contains outbound notification settings.
type WebhookConfig struct {
	// TimeoutMS bounds each webhook request.
	TimeoutMS int `yaml:"timeout_ms"`

	// DoorOpened and DoorClosed are optional URLs fired when the door
	// reaches the corresponding terminal state.
	DoorOpened string `yaml:"door_opened,omitempty"`
	DoorClosed string `yaml:"door_closed,omitempty"`
}

// MQTTConfig holds the broker session settings shared by every
// MQTT-backed component.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig is the broker endpoint.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig carries broker credentials. The password normally
// arrives through GARAGEDOOR_MQTT_PASSWORD rather than the file.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection backoff settings,
// in seconds. Reconnection itself never gives up.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatabaseConfig holds the SQLite history store settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays bounds how long door event rows are kept.
	// Zero disables pruning. Fault rows are always kept.
	RetentionDays int `yaml:"retention_days"`
}

// InfluxDBConfig holds the optional telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig controls log level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the runtime configuration from the YAML file at path.
//
// Values resolve in three layers, later layers winning:
//  1. Built-in defaults
//  2. The YAML file
//  3. Environment variables
//
// Environment variables follow the pattern GARAGEDOOR_SECTION_KEY,
// for example GARAGEDOOR_DATABASE_PATH or GARAGEDOOR_MQTT_HOST.
//
// Returns:
//   - *Config: Validated and ready to hand to the wiring code
//   - error: Unreadable file, bad YAML, or a failed validation rule
func Load(path string) (*Config, error) {
	// Defaults first, then the file on top
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Secrets and per-host overrides come from the environment
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig seeds every section with a workable starting value.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "garage-01",
			Name:     "Garage Door",
			Timezone: "UTC",
		},
		Door: DoorConfig{
			MaxTravelMS:              20000,
			ObstructionFreshnessMS:   500,
			DebounceMS:               50,
			SettleDelayMS:            1000,
			DropoutWindowMS:          5000,
			VentTravelMS:             1500,
			AutoReverseOnObstruction: true,
		},
		Safety: SafetyConfig{
			CheckIntervalMS: 100,
			TravelGraceMS:   2000,
		},
		Sensors: SensorsConfig{
			Backend: "zigbee",
			GPIO: GPIOSensorConfig{
				Chip:           "gpiochip0",
				PollIntervalMS: 10,
			},
		},
		Actuator: ActuatorConfig{
			Backend: "mqtt",
			MQTT: MQTTActuatorConfig{
				PulseSeconds: 0.25,
			},
			GPIO: GPIOActuatorConfig{
				Chip:    "gpiochip0",
				PulseMS: 400,
			},
		},
		Gateway: GatewayConfig{
			MQTTEnabled: true,
		},
		Schedule: ScheduleConfig{
			Sunrise:         ScheduleEventConfig{Action: ScheduleActionClose},
			Sunset:          ScheduleEventConfig{Action: ScheduleActionVent},
			CooldownMinutes: 30,
		},
		Webhooks: WebhookConfig{
			TimeoutMS: 5000,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "garagedoor-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:          "./data/garagedoor.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides layers GARAGEDOOR_* variables over the file values.
// Only secrets and host-specific fields are exposed this way.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GARAGEDOOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GARAGEDOOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GARAGEDOOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GARAGEDOOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GARAGEDOOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate rejects configurations the controller cannot safely run with.
//
// Returns:
//   - error: Every violated rule joined into one message, or nil
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Door timing validation
	if c.Door.MaxTravelMS <= 0 {
		errs = append(errs, "door.max_travel_ms must be positive")
	}
	if c.Door.ObstructionFreshnessMS <= 0 {
		errs = append(errs, "door.obstruction_freshness_ms must be positive")
	}
	if c.Door.DebounceMS < 0 {
		errs = append(errs, "door.debounce_ms must not be negative")
	}
	if c.Door.DebounceMS >= c.Door.MaxTravelMS {
		errs = append(errs, "door.debounce_ms must be less than door.max_travel_ms")
	}
	if c.Door.VentTravelMS <= 0 {
		errs = append(errs, "door.vent_travel_ms must be positive")
	}

	// Safety validation
	if c.Safety.CheckIntervalMS <= 0 {
		errs = append(errs, "safety.check_interval_ms must be positive")
	}

	// Sensor validation
	switch c.Sensors.Backend {
	case "zigbee", "gpio", "fake":
	default:
		errs = append(errs, fmt.Sprintf("sensors.backend %q is not one of zigbee, gpio, fake", c.Sensors.Backend))
	}
	for i, s := range c.Sensors.Zigbee {
		if s.Topic == "" {
			errs = append(errs, fmt.Sprintf("sensors.zigbee[%d].topic is required", i))
		}
		if !validRole(s.Role) {
			errs = append(errs, fmt.Sprintf("sensors.zigbee[%d].role %q is unknown", i, s.Role))
		}
		if s.Kind != "contact" && s.Kind != "motion" {
			errs = append(errs, fmt.Sprintf("sensors.zigbee[%d].kind %q is not one of contact, motion", i, s.Kind))
		}
	}
	for i, l := range c.Sensors.GPIO.Lines {
		if !validRole(l.Role) {
			errs = append(errs, fmt.Sprintf("sensors.gpio.lines[%d].role %q is unknown", i, l.Role))
		}
	}

	// A hardware backend must cover the open switch, closed switch and
	// obstruction roles; the machine cannot confirm travel or permit a
	// close without them.
	var roles map[string]bool
	switch c.Sensors.Backend {
	case "zigbee":
		roles = map[string]bool{}
		for _, s := range c.Sensors.Zigbee {
			roles[s.Role] = true
		}
	case "gpio":
		roles = map[string]bool{}
		for _, l := range c.Sensors.GPIO.Lines {
			roles[l.Role] = true
		}
	}
	if roles != nil {
		for _, role := range []string{RoleOpenSwitch, RoleClosedSwitch, RoleObstruction} {
			if !roles[role] {
				errs = append(errs, fmt.Sprintf("sensors: backend %q has no %s sensor", c.Sensors.Backend, role))
			}
		}
	}

	// Actuator validation
	switch c.Actuator.Backend {
	case "mqtt", "gpio", "fake":
	default:
		errs = append(errs, fmt.Sprintf("actuator.backend %q is not one of mqtt, gpio, fake", c.Actuator.Backend))
	}
	if c.Actuator.Backend == "mqtt" && !c.Actuator.DryRun {
		if c.Actuator.MQTT.OpenTopic == "" || c.Actuator.MQTT.CloseTopic == "" {
			errs = append(errs, "actuator.mqtt.open_topic and actuator.mqtt.close_topic are required")
		}
	}

	// Schedule validation
	if c.Schedule.Enabled {
		if c.Site.Location.Latitude == 0 && c.Site.Location.Longitude == 0 {
			errs = append(errs, "site.location is required when schedule is enabled")
		}
		if !validScheduleAction(c.Schedule.Sunrise.Action) {
			errs = append(errs, fmt.Sprintf("schedule.sunrise.action %q is unknown", c.Schedule.Sunrise.Action))
		}
		if !validScheduleAction(c.Schedule.Sunset.Action) {
			errs = append(errs, fmt.Sprintf("schedule.sunset.action %q is unknown", c.Schedule.Sunset.Action))
		}
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validRole reports whether role is a recognised sensor role.
func validRole(role string) bool {
	switch role {
	case RoleOpenSwitch, RoleClosedSwitch, RoleObstruction, RoleCurrent:
		return true
	}
	return false
}

// validScheduleAction reports whether action is a recognised schedule action.
func validScheduleAction(action string) bool {
	switch action {
	case ScheduleActionClose, ScheduleActionOpen, ScheduleActionVent, ScheduleActionNone:
		return true
	}
	return false
}

// MaxTravel returns the maximum travel duration.
func (d DoorConfig) MaxTravel() time.Duration {
	return time.Duration(d.MaxTravelMS) * time.Millisecond
}

// ObstructionFreshness returns the obstruction freshness window.
func (d DoorConfig) ObstructionFreshness() time.Duration {
	return time.Duration(d.ObstructionFreshnessMS) * time.Millisecond
}

// Debounce returns the sensor debounce duration.
func (d DoorConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceMS) * time.Millisecond
}

// SettleDelay returns the post-stop settle delay.
func (d DoorConfig) SettleDelay() time.Duration {
	return time.Duration(d.SettleDelayMS) * time.Millisecond
}

// DropoutWindow returns the sensor dropout window.
func (d DoorConfig) DropoutWindow() time.Duration {
	return time.Duration(d.DropoutWindowMS) * time.Millisecond
}

// VentTravel returns the travel time to the ventilation position.
func (d DoorConfig) VentTravel() time.Duration {
	return time.Duration(d.VentTravelMS) * time.Millisecond
}

// CheckInterval returns the watchdog evaluation cadence.
func (s SafetyConfig) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMS) * time.Millisecond
}

// TravelGrace returns the watchdog grace on top of max travel.
func (s SafetyConfig) TravelGrace() time.Duration {
	return time.Duration(s.TravelGraceMS) * time.Millisecond
}

// Timeout returns the webhook request timeout.
func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutMS) * time.Millisecond
}

// PollInterval returns the GPIO sampling cadence.
func (g GPIOSensorConfig) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalMS) * time.Millisecond
}

// Pulse returns the relay pulse duration.
func (g GPIOActuatorConfig) Pulse() time.Duration {
	return time.Duration(g.PulseMS) * time.Millisecond
}

// Cooldown returns the post-fire schedule cooldown.
func (s ScheduleConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

// Retention returns the door event retention window.
func (d DatabaseConfig) Retention() time.Duration {
	return time.Duration(d.RetentionDays) * 24 * time.Hour
}
