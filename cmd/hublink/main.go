// HubLink - Multi-Hub Connection Engine
//
// This is the main entry point for the HubLink service. HubLink bridges
// polling-only smart-home hub APIs into a unified device model with:
//   - Automatic reconnection with bounded backoff and a grace period
//   - A REST + WebSocket API for UIs and automations
//   - Optional MQTT state mirroring and InfluxDB history
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/graymere/hublink/migrations"

	"github.com/graymere/hublink/internal/api"
	"github.com/graymere/hublink/internal/hub"
	"github.com/graymere/hublink/internal/hubclient"
	"github.com/graymere/hublink/internal/infrastructure/config"
	"github.com/graymere/hublink/internal/infrastructure/database"
	"github.com/graymere/hublink/internal/infrastructure/influxdb"
	"github.com/graymere/hublink/internal/infrastructure/logging"
	"github.com/graymere/hublink/internal/infrastructure/mqtt"
	"github.com/graymere/hublink/internal/mirror"
	"github.com/graymere/hublink/internal/settings"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting HubLink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Settings store over the shared database
	store := settings.New(db, log)

	// Hub engine: one connection + poller per registered hub
	manager, err := hub.NewManager(hub.ManagerOptions{
		Store:     store,
		NewClient: hubclient.Factory(log, hubclient.WithTimeout(cfg.RequestTimeout())),
		Stagger:   cfg.StartupStagger(),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating hub manager: %w", err)
	}
	defer func() {
		log.Info("stopping hub manager")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing hub manager", "error", closeErr)
		}
	}()

	if initErr := manager.Initialize(ctx); initErr != nil {
		return fmt.Errorf("initialising hub manager: %w", initErr)
	}
	log.Info("hub manager initialised", "hubs", len(manager.Hubs()))

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Event mirror: relay engine events to MQTT topics and history
	if mqttClient != nil || influxClient != nil {
		m, mirrorErr := newMirror(manager, mqttClient, influxClient, log)
		if mirrorErr != nil {
			return fmt.Errorf("creating event mirror: %w", mirrorErr)
		}
		go m.Run(ctx)
		log.Info("event mirror started",
			"mqtt", mqttClient != nil,
			"influxdb", influxClient != nil,
		)
	}

	// Start the REST + WebSocket API
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Engine:  manager,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, server, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stop accepting requests)
	// 2. InfluxDB / MQTT (if enabled)
	// 3. Hub manager (disconnect hubs)
	// 4. Database

	log.Info("HubLink stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HUBLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HUBLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newMirror wires the optional sinks into an event mirror. Nil clients
// must stay nil interfaces, so the conversion is done per-sink here.
func newMirror(manager *hub.Manager, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*mirror.Mirror, error) {
	opts := mirror.Options{
		Engine: manager,
		Logger: log,
	}
	if mqttClient != nil {
		opts.Publisher = mqttClient
	}
	if influxClient != nil {
		opts.Recorder = influxClient
	}
	return mirror.New(opts)
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
