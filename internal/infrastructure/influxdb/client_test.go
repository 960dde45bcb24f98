package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/garage-door-core/internal/infrastructure/config"
	"github.com/nerrad567/garage-door-core/internal/infrastructure/influxdb"
)

// These tests run against a local InfluxDB with the dev-stack
// credentials. Without one they skip; the config and disabled paths
// need no server.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "garagedoor-dev-token",
		Org:           "home",
		Bucket:        "garagedoor",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connectOrSkip(t *testing.T, cfg config.InfluxDBConfig) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// writeProbe captures asynchronous write errors so tests can assert a
// batch landed without scraping the bucket afterwards.
type writeProbe struct {
	mu   sync.Mutex
	errs []error
}

func (p *writeProbe) record(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *writeProbe) failures() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

// flushAndSettle forces the batch out and leaves time for the error
// channel to deliver anything the server rejected.
func flushAndSettle(c *influxdb.Client) {
	c.Flush()
	time.Sleep(100 * time.Millisecond)
}

// ─── Connect ─────────────────────────────────────────────────────────

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_UnreachableServer(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:64999"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_ReportsConnected(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	if !client.IsConnected() {
		t.Error("IsConnected() = false right after Connect()")
	}
}

func TestConnect_DefaultsUnsetBatchSettings(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client := connectOrSkip(t, cfg)
	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

// ─── Health check ────────────────────────────────────────────────────

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_CancelledContext(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with cancelled context did not error")
	}
}

// ─── Writers ─────────────────────────────────────────────────────────

func TestWriters_BatchesAccepted(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	probe := &writeProbe{}
	client.SetOnError(probe.record)

	client.WriteSensorEvent("closed-switch", "closed_switch", true)
	client.WriteSensorTelemetry("closed-switch", map[string]interface{}{
		"battery":     97.0,
		"linkquality": 134.0,
		"voltage":     3005.0,
	})
	client.WriteDoorTransition("closed", "opening", "command:open")
	client.WriteFault("timeout", true)
	client.WriteFault("timeout", false)

	flushAndSettle(client)

	if errs := probe.failures(); len(errs) != 0 {
		t.Errorf("write errors = %v", errs)
	}
}

func TestWriteSensorTelemetry_EmptyFieldsDropped(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	probe := &writeProbe{}
	client.SetOnError(probe.record)

	client.WriteSensorTelemetry("closed-switch", nil)
	flushAndSettle(client)

	if errs := probe.failures(); len(errs) != 0 {
		t.Errorf("write errors = %v", errs)
	}
}

// ─── Close ───────────────────────────────────────────────────────────

func TestClose_FlushesAndDisconnects(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	client.WriteSensorEvent("closed-switch", "closed_switch", false)
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true once Close() returned")
	}

	ctx := context.Background()
	if err := client.HealthCheck(ctx); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Writers on a closed client drop silently.
	client.WriteDoorTransition("open", "closing", "command:close")
	client.Flush()
}
