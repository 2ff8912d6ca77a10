// Gray Logic Teslemetry Bridge
//
// This is the main entry point for the Teslemetry bridge. It exposes Tesla
// energy sites and vehicles linked to a Teslemetry account as Gray Logic
// devices:
//   - Energy sites are polled and mapped to device capabilities
//   - Capability changes are applied through the Teslemetry command API
//   - State is published to MQTT and recorded in InfluxDB
//
// See internal/bridges/teslemetry for the bridge architecture.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-teslemetry/internal/api"
	"github.com/nerrad567/gray-logic-teslemetry/internal/audit"
	bridge "github.com/nerrad567/gray-logic-teslemetry/internal/bridges/teslemetry"
	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-teslemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-teslemetry/internal/metrics"
	tslm "github.com/nerrad567/gray-logic-teslemetry/internal/teslemetry"
	"github.com/nerrad567/gray-logic-teslemetry/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Teslemetry bridge",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// ─── Storage ────────────────────────────────────────────────────

	db, err := database.Open(ctx, cfg.Database)
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log.Component("device"))
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	commandLog := audit.NewSQLiteRepository(db.DB)

	// ─── Messaging ──────────────────────────────────────────────────

	will, err := bridge.OfflinePayload(cfg.Bridge.ID, version)
	if err != nil {
		return fmt.Errorf("building MQTT will: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithWill(bridge.HealthTopic(), will),
		mqtt.WithLogger(log.Component("mqtt")),
	)
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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
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

	// ─── Teslemetry ─────────────────────────────────────────────────

	apiLog := log.Component("teslemetry")
	client := tslm.NewClient(cfg.Teslemetry, tslm.WithLogger(apiLog))
	catalog := tslm.NewCatalog(client, tslm.PollingIntervals{
		SiteInfo:   cfg.Teslemetry.GetSiteInfoInterval(),
		LiveStatus: cfg.Teslemetry.GetLiveStatusInterval(),
	}, apiLog)
	defer func() {
		log.Info("stopping Teslemetry pollers")
		catalog.Close()
	}()

	m := metrics.New(deviceRegistry)

	teslemetryBridge, err := startBridge(ctx, cfg, bridgeDeps{
		mqtt:     mqttClient,
		registry: deviceRegistry,
		catalog:  catalog,
		influx:   influxClient,
		metrics:  m,
		commands: commandLog,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping Teslemetry bridge")
		teslemetryBridge.Stop()
	}()

	// ─── HTTP API ───────────────────────────────────────────────────

	checks := map[string]api.HealthCheck{
		"database": db.HealthCheck,
		"mqtt":     mqttClient.HealthCheck,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}

	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Registry: deviceRegistry,
		Bridge:   teslemetryBridge,
		Metrics:  m.Handler(),
		Commands: commandLog,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse order: API, bridge, pollers,
	// InfluxDB, MQTT, database.

	log.Info("Teslemetry bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every dependency check and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthCheck) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		check, ok := checks[name]
		if !ok {
			continue
		}
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// bridgeDeps groups what the bridge is wired to.
type bridgeDeps struct {
	mqtt     *mqtt.Client
	registry *device.Registry
	catalog  *tslm.Catalog
	influx   *influxdb.Client // nil when InfluxDB is disabled
	metrics  *metrics.Metrics
	commands *audit.SQLiteRepository
}

// startBridge wires and starts the Teslemetry bridge.
func startBridge(ctx context.Context, cfg *config.Config, deps bridgeDeps, log *logging.Logger) (*bridge.Bridge, error) {
	opts := bridge.BridgeOptions{
		BridgeID:           cfg.Bridge.ID,
		Version:            version,
		HealthInterval:     cfg.Bridge.GetHealthInterval(),
		AutoProvisionSites: cfg.Bridge.AutoProvisionSites,
		MQTTClient:         deps.mqtt,
		Registry:           deps.registry,
		Catalog:            deps.catalog,
		Recorder:           deps.metrics,
		Commands:           deps.commands,
		Logger:             log.Component("bridge"),
	}
	// A nil *influxdb.Client must not become a non-nil interface.
	if deps.influx != nil {
		opts.History = deps.influx
	}

	b, err := bridge.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating Teslemetry bridge: %w", err)
	}
	deps.catalog.SetPollErrorHandler(b.HandlePollError)

	if err := b.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting Teslemetry bridge: %w", err)
	}
	log.Info("Teslemetry bridge started", "energy_sites", b.ControllerCount())

	return b, nil
}
