package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/graymere/hublink/internal/infrastructure/config"
	"github.com/graymere/hublink/internal/infrastructure/influxdb"
)

// Write tests need a live server and skip without one. The values below
// match the local development stack.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "hublink-dev-token",
		Org:           "hublink",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// writeErrors collects async write failures for assertion.
type writeErrors struct {
	mu   sync.Mutex
	errs []error
}

func (w *writeErrors) record(err error) {
	w.mu.Lock()
	w.errs = append(w.errs, err)
	w.mu.Unlock()
}

func (w *writeErrors) first() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.errs) == 0 {
		return nil
	}
	return w.errs[0]
}

func connectTestServer(t *testing.T, cfg config.InfluxDBConfig) (*influxdb.Client, *writeErrors) {
	t.Helper()

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })

	errs := &writeErrors{}
	client.SetOnError(errs.record)
	return client, errs
}

// flushAndCheck flushes pending points and fails on any async error.
func flushAndCheck(t *testing.T, client *influxdb.Client, errs *writeErrors) {
	t.Helper()
	client.Flush()
	time.Sleep(100 * time.Millisecond) // error callback is async
	if err := errs.first(); err != nil {
		t.Errorf("async write error: %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("err = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_AndHealthCheck(t *testing.T) {
	client, _ := connectTestServer(t, testConfig())

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestConnect_BatchDefaultsApplied(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, _ := connectTestServer(t, cfg)
	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

func TestWriteDeviceState(t *testing.T) {
	client, errs := connectTestServer(t, testConfig())

	client.WriteDeviceState("hub-test", "light-01", "light",
		map[string]any{"on": true, "brightness": 80, "mode": "auto"})
	flushAndCheck(t, client, errs)
}

func TestWriteDeviceState_SkipsNestedProps(t *testing.T) {
	client, errs := connectTestServer(t, testConfig())

	// Only nested values: nothing to write, and nothing to fail.
	client.WriteDeviceState("hub-test", "sensor-01", "sensor",
		map[string]any{"nested": map[string]any{"x": 1}})
	flushAndCheck(t, client, errs)
}

func TestWriteHubStatus(t *testing.T) {
	client, errs := connectTestServer(t, testConfig())

	client.WriteHubStatus("hub-test", "connected", 12, 0)
	flushAndCheck(t, client, errs)
}

func TestWritePollDuration(t *testing.T) {
	client, errs := connectTestServer(t, testConfig())

	client.WritePollDuration("hub-test", true, 750*time.Millisecond)
	client.WritePollDuration("hub-test", false, 15*time.Second)
	flushAndCheck(t, client, errs)
}

func TestWritePoint(t *testing.T) {
	client, errs := connectTestServer(t, testConfig())

	client.WritePoint("custom_measurement",
		map[string]string{"source": "test"},
		map[string]interface{}{"value": 99.9, "count": 5})
	client.WritePointWithTime("custom_measurement",
		map[string]string{"source": "test-backfill"},
		map[string]interface{}{"value": 88.8},
		time.Now().Add(-time.Hour))
	flushAndCheck(t, client, errs)
}

func TestClose(t *testing.T) {
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}

	client.WriteHubStatus("hub-close-test", "connected", 1, 0)
	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}

	// Writes after close are dropped silently.
	client.WriteHubStatus("hub-close-test", "connected", 1, 0)
}
