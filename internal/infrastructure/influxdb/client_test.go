package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	status int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping", "/health":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		status := f.status
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func connectFake(t *testing.T, fake *fakeInflux) *influxdb.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "graylogic",
		Bucket:        "teslemetry",
		BatchSize:     10,
		FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{Enabled: true, URL: url})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteCapabilityValue(t *testing.T) {
	fake := &fakeInflux{}
	client := connectFake(t, fake)

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}

	client.WriteCapabilityValue("dev-1", "energy-site", "measure_battery", 81)
	client.Flush()

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	line := lines[0]
	for _, want := range []string{
		influxdb.MeasurementCapability + ",",
		"capability=measure_battery",
		"device_id=dev-1",
		"driver=energy-site",
		"value=81",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteEnergySiteSnapshot(t *testing.T) {
	fake := &fakeInflux{}
	client := connectFake(t, fake)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.WriteEnergySiteSnapshot("12345", map[string]any{"solar_power": 4200.0, "grid_power": -800.0}, ts)
	client.WriteEnergySiteSnapshot("12345", nil, ts) // empty snapshots are dropped
	client.Flush()

	lines := fake.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	if !strings.HasPrefix(lines[0], influxdb.MeasurementEnergySite+",site_id=12345 ") {
		t.Errorf("line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], " 1772366400000000000") {
		t.Errorf("line %q does not carry the sample timestamp", lines[0])
	}
}

func TestWriteAfterClose_Dropped(t *testing.T) {
	fake := &fakeInflux{}
	client := connectFake(t, fake)

	client.Close() //nolint:errcheck // closing early on purpose
	client.WritePoint("custom", nil, map[string]any{"v": 1.0})
	client.Flush()

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if n := len(fake.written()); n != 0 {
		t.Errorf("written lines after Close = %d, want 0", n)
	}
}

func TestHealthCheck(t *testing.T) {
	client := connectFake(t, &fakeInflux{})

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
