// Garage Door Core - autonomous door controller
//
// This is the main entry point for the garage door controller. It wires
// the sensor pipeline, the door state machine and safety watchdog, and
// the collaborators around them:
//   - zigbee2mqtt / GPIO sensor ingestion with debouncing
//   - actuator drive over momentary-pulse MQTT relays or a GPIO relay pair
//   - MQTT command and state topics for remote collaborators
//   - SQLite event and fault history, InfluxDB telemetry
//   - sunrise/sunset scheduling and outbound webhooks
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/garage-door-core/migrations"

	"github.com/nerrad567/garage-door-core/internal/actuator"
	"github.com/nerrad567/garage-door-core/internal/bridges/zigbee"
	"github.com/nerrad567/garage-door-core/internal/door"
	"github.com/nerrad567/garage-door-core/internal/gateway"
	"github.com/nerrad567/garage-door-core/internal/history"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/config"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/database"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/logging"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/garage-door-core/internal/schedule"
	"github.com/nerrad567/garage-door-core/internal/sensor"
	"github.com/nerrad567/garage-door-core/internal/webhook"
)

// Stamped by the release build:
// go build -ldflags "-X main.version=1.2.0 -X main.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires and starts every component, blocks until ctx is cancelled,
// then tears down in reverse order through the defer chain.
func run(ctx context.Context) error {
	// Bootstrap logger; replaced once config is in.
	log := logging.Default()
	log.Info("starting garage door core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logging ready",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Event and fault history store
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("migrations applied")

	// Broker session shared by sensors, actuator and the gateway
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Telemetry sink, optional
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Actuator drive backend
	driver, closeDriver, err := buildDriver(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("building actuator driver: %w", err)
	}
	if closeDriver != nil {
		defer func() {
			log.Info("releasing actuator")
			if closeErr := closeDriver(); closeErr != nil {
				log.Error("error closing actuator", "error", closeErr)
			}
		}()
	}
	log.Info("actuator ready", "backend", cfg.Actuator.Backend, "dry_run", cfg.Actuator.DryRun)

	// Door state machine with the event bus as its sink
	machine := door.New(driver, door.Config{
		MaxTravel:            cfg.Door.MaxTravel(),
		ObstructionFreshness: cfg.Door.ObstructionFreshness(),
		SettleDelay:          cfg.Door.SettleDelay(),
		AutoReverse:          cfg.Door.AutoReverseOnObstruction,
	})
	machine.SetLogger(log)

	bus := gateway.NewEventBus()
	bus.SetLogger(log)
	machine.SetEventSink(bus)

	// Independent safety watchdog over the same machine
	monitor := door.NewMonitor(machine, door.MonitorConfig{
		CheckInterval:        cfg.Safety.CheckInterval(),
		MaxTravel:            cfg.Door.MaxTravel(),
		TravelGrace:          cfg.Safety.TravelGrace(),
		ObstructionFreshness: cfg.Door.ObstructionFreshness(),
	})
	monitor.SetLogger(log)

	// Sensor reader feeding the machine's queue
	reader := sensor.NewReader(sensor.Config{
		Debounce:      cfg.Door.Debounce(),
		DropoutWindow: cfg.Door.DropoutWindow(),
	}, machine.HandleSensorEvent)
	reader.SetLogger(log)
	reader.SetFaultHandler(machine.ReportFault)

	// Dropout detection is armed exactly while the door should be moving.
	bus.Subscribe("motion-watch", func(ev door.Event) {
		if ev.Type != door.EventStateChanged {
			return
		}
		reader.SetMotionExpected(ev.To == door.StateOpening || ev.To == door.StateClosing)
	})

	// Command gateway in front of the machine
	gw := gateway.New(machine)
	gw.SetLogger(log)

	// Event and fault history
	repo := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(repo, cfg.Database.Retention())
	recorder.SetLogger(log)
	bus.Subscribe("history", recorder.HandleEvent)
	reportOpenFaults(ctx, repo, log)

	// Outbound webhooks
	notifier := webhook.New(cfg.Webhooks.Timeout())
	notifier.SetLogger(log)
	defer notifier.Close()
	if cfg.Webhooks.DoorOpened != "" || cfg.Webhooks.DoorClosed != "" {
		announcer := webhook.NewAnnouncer(notifier, cfg.Webhooks.DoorOpened, cfg.Webhooks.DoorClosed)
		bus.Subscribe("webhooks", announcer.HandleEvent)
	}

	// Door transitions and faults into InfluxDB
	if influxClient != nil {
		bus.Subscribe("telemetry", func(ev door.Event) {
			switch ev.Type {
			case door.EventStateChanged:
				influxClient.WriteDoorTransition(string(ev.From), string(ev.To), ev.Trigger)
			case door.EventFault:
				influxClient.WriteFault(string(ev.Fault), true)
			case door.EventFaultCleared:
				influxClient.WriteFault(string(ev.Fault), false)
			}
		})
	}

	// Sensor sources for the configured backend
	sources, err := buildSources(cfg, mqttClient, influxClient, notifier, log)
	if err != nil {
		return fmt.Errorf("building sensor sources: %w", err)
	}
	for _, src := range sources {
		defer src.Close()
	}

	// Remote command and state topics
	var adapter *gateway.MQTTAdapter
	if cfg.Gateway.MQTTEnabled {
		adapter = gateway.NewMQTTAdapter(mqttClient, gw)
		adapter.SetLogger(log)
		bus.Subscribe("mqtt", adapter.HandleEvent)
	} else {
		log.Info("MQTT gateway disabled")
	}

	// Sunrise/sunset scheduling
	var sched *schedule.Scheduler
	if cfg.Schedule.Enabled {
		sched = schedule.New(gw, schedule.Config{
			Latitude:   cfg.Site.Location.Latitude,
			Longitude:  cfg.Site.Location.Longitude,
			Sunrise:    scheduleTrigger(cfg.Schedule.Sunrise),
			Sunset:     scheduleTrigger(cfg.Schedule.Sunset),
			Cooldown:   cfg.Schedule.Cooldown(),
			VentTravel: cfg.Door.VentTravel(),
		})
		sched.SetLogger(log)
	} else {
		log.Info("schedule disabled")
	}

	// Start order: the machine's loop first so every queue drains, sensor
	// sources and remote surfaces last so nothing feeds a stopped loop.
	machine.Start(ctx)
	monitor.Start(ctx)
	reader.Start(ctx)
	recorder.Start(ctx)
	for _, src := range sources {
		if startErr := src.Start(ctx, reader.Ingest); startErr != nil {
			return fmt.Errorf("starting sensor source: %w", startErr)
		}
	}
	log.Info("sensor pipeline started", "backend", cfg.Sensors.Backend, "sources", len(sources))

	if adapter != nil {
		if startErr := adapter.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT gateway: %w", startErr)
		}
	}
	if sched != nil {
		sched.Start(ctx)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("controller up", "site", cfg.Site.ID)

	<-ctx.Done()

	log.Info("shutting down")

	// The machine disengages the actuator on its way out; hold the
	// transports open until it has.
	select {
	case <-machine.Done():
	case <-time.After(5 * time.Second):
		log.Warn("door machine did not stop in time")
	}

	log.Info("garage door core stopped")
	return nil
}

// getConfigPath resolves the config file: GARAGEDOOR_CONFIG wins,
// otherwise the conventional location.
func getConfigPath() string {
	if path := os.Getenv("GARAGEDOOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDriver constructs the configured actuator backend. The returned
// close function is nil for backends without hardware to release.
func buildDriver(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (door.Driver, func() error, error) {
	switch cfg.Actuator.Backend {
	case "mqtt":
		d := actuator.NewMQTTDriver(mqttClient, actuator.MQTTOptions{
			OpenTopic:    cfg.Actuator.MQTT.OpenTopic,
			CloseTopic:   cfg.Actuator.MQTT.CloseTopic,
			PulseSeconds: cfg.Actuator.MQTT.PulseSeconds,
			DryRun:       cfg.Actuator.DryRun,
		})
		d.SetLogger(log)
		return d, nil, nil

	case "gpio":
		if cfg.Actuator.DryRun {
			log.Info("dry run: fake actuator substituted for gpio relays")
			return actuator.NewFakeDriver(), nil, nil
		}
		relay, err := actuator.NewGPIORelay(actuator.GPIORelayOptions{
			Chip:      cfg.Actuator.GPIO.Chip,
			OpenLine:  cfg.Actuator.GPIO.OpenLine,
			CloseLine: cfg.Actuator.GPIO.CloseLine,
			Pulse:     cfg.Actuator.GPIO.Pulse(),
		})
		if err != nil {
			return nil, nil, err
		}
		relay.SetLogger(log)
		return relay, relay.Close, nil

	case "fake":
		return actuator.NewFakeDriver(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown actuator backend %q", cfg.Actuator.Backend)
	}
}

// buildSources constructs the configured sensor backend. The zigbee
// bridge additionally records device telemetry and fires per-sensor
// webhooks; influxClient may be nil when telemetry is disabled.
func buildSources(cfg *config.Config, mqttClient *mqtt.Client, influxClient *influxdb.Client, notifier *webhook.Notifier, log *logging.Logger) ([]sensor.Source, error) {
	switch cfg.Sensors.Backend {
	case "zigbee":
		devices := make([]zigbee.Device, 0, len(cfg.Sensors.Zigbee))
		for _, sc := range cfg.Sensors.Zigbee {
			devices = append(devices, zigbee.Device{
				Topic:           sc.Topic,
				Name:            sc.Name,
				Role:            door.SensorKind(sc.Role),
				Kind:            zigbee.DeviceKind(sc.Kind),
				Invert:          sc.Invert,
				ActiveWebhook:   sc.ActiveWebhook,
				InactiveWebhook: sc.InactiveWebhook,
			})
		}
		bridge, err := zigbee.New(mqttClient, devices)
		if err != nil {
			return nil, err
		}
		bridge.SetLogger(log)
		bridge.SetWebhooks(notifier)
		if influxClient != nil {
			bridge.SetTelemetry(influxClient)
		}
		return []sensor.Source{bridge}, nil

	case "gpio":
		lines := make([]sensor.GPIOLine, 0, len(cfg.Sensors.GPIO.Lines))
		for _, lc := range cfg.Sensors.GPIO.Lines {
			lines = append(lines, sensor.GPIOLine{
				Line:      lc.Line,
				Name:      lc.Name,
				Role:      door.SensorKind(lc.Role),
				ActiveLow: lc.ActiveLow,
			})
		}
		src := sensor.NewGPIOSource(cfg.Sensors.GPIO.Chip, cfg.Sensors.GPIO.PollInterval(), lines)
		src.SetLogger(log)
		return []sensor.Source{src}, nil

	case "fake":
		return []sensor.Source{sensor.NewFakeSource(0)}, nil

	default:
		return nil, fmt.Errorf("unknown sensor backend %q", cfg.Sensors.Backend)
	}
}

// scheduleTrigger converts one configured solar trigger.
func scheduleTrigger(ec config.ScheduleEventConfig) schedule.Trigger {
	return schedule.Trigger{
		Action: schedule.Action(ec.Action),
		Offset: time.Duration(ec.OffsetMinutes) * time.Minute,
	}
}

// reportOpenFaults surfaces faults persisted by an earlier run that were
// never acknowledged. The machine starts in Unknown regardless; the log
// line tells the operator why the door may refuse commands again soon.
func reportOpenFaults(ctx context.Context, repo history.Repository, log *logging.Logger) {
	faults, err := repo.OpenFaults(ctx)
	if err != nil {
		log.Warn("reading open fault history failed", "error", err)
		return
	}
	for _, f := range faults {
		log.Warn("unrecovered fault on record",
			"kind", f.Kind,
			"detail", f.Detail,
			"detected_at", f.DetectedAt,
		)
	}
}

// healthCheck sweeps every infrastructure connection after wiring and
// reports the first failure. influxClient is nil when telemetry is
// disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
