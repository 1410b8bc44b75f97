// Greenhouse Core - Cultivation Control Platform
//
// This is the main entry point for the Greenhouse Core application.
// Greenhouse Core coordinates a network of greenhouses:
//   - Greenhouse / zone / crop lifecycle with guarded state transitions
//   - Time-windowed irrigation and lighting activation
//   - Sensor telemetry with crop tolerance band monitoring
//   - Role-targeted notification fan-out
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/verdantcl/greenhouse-core/migrations"

	"github.com/verdantcl/greenhouse-core/internal/api"
	"github.com/verdantcl/greenhouse-core/internal/facility"
	"github.com/verdantcl/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantcl/greenhouse-core/internal/infrastructure/database"
	"github.com/verdantcl/greenhouse-core/internal/infrastructure/influxdb"
	"github.com/verdantcl/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantcl/greenhouse-core/internal/infrastructure/mqtt"
	"github.com/verdantcl/greenhouse-core/internal/notify"
	"github.com/verdantcl/greenhouse-core/internal/schedule"
	"github.com/verdantcl/greenhouse-core/internal/telemetry"
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
	log.Info("starting Greenhouse Core",
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

	// Repositories
	facilityRepo := facility.NewSQLiteRepository(db.DB)
	cropRepo := facility.NewSQLiteCropRepository(db.DB)
	scheduleRepo := schedule.NewSQLiteRepository(db.DB)
	notifyRepo := notify.NewSQLiteRepository(db.DB)

	// Transition coordinator serialises all state changes
	coordinator := facility.NewCoordinator(db.DB)
	coordinator.SetLogger(log)

	// Notification fan-out
	notifier := notify.NewService(notifyRepo)
	notifier.SetLogger(log)
	coordinator.AddListener(notify.NewTransitionFanout(notifier))

	// Connect to MQTT broker (optional; controllers and sensors need it,
	// but the REST surface works without)
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

		notifier.SetPusher(notify.NewMQTTPusher(mqttClient))
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

	// WebSocket hub is shared between the API server, the evaluator and
	// the sensor monitor, so it is created here and injected everywhere.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	notifier.SetHub(hub)

	// Activation evaluator recomputes the irrigation/lighting maps on a
	// fixed tick and publishes transitions.
	evalOpts := []schedule.EvaluatorOption{
		schedule.WithLogger(log),
		schedule.WithHub(hub),
		schedule.WithNotifier(notifier),
		schedule.WithDeliveryTimeout(cfg.Scheduler.GetDeliveryTimeout()),
	}
	if mqttClient != nil {
		evalOpts = append(evalOpts, schedule.WithMQTT(mqttClient))
	}
	if influxClient != nil {
		evalOpts = append(evalOpts, schedule.WithTSDB(influxClient))
	}
	evaluator := schedule.NewEvaluator(scheduleRepo, cfg.Scheduler.GetTickInterval(), evalOpts...)
	go evaluator.Run(ctx)

	// Sensor monitor consumes telemetry off the broker
	if mqttClient != nil {
		monOpts := []telemetry.Option{
			telemetry.WithLogger(log),
			telemetry.WithNotifier(notifier),
			telemetry.WithHub(hub),
		}
		if influxClient != nil {
			monOpts = append(monOpts, telemetry.WithTSDB(influxClient))
		}
		monitor := telemetry.NewMonitor(&mqttSubscriberAdapter{client: mqttClient}, cropRepo, monOpts...)
		if startErr := monitor.Start(ctx); startErr != nil {
			return fmt.Errorf("starting sensor monitor: %w", startErr)
		}
	}

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Facility:    facilityRepo,
		Crops:       cropRepo,
		Coordinator: coordinator,
		Programs:    scheduleRepo,
		Evaluator:   evaluator,
		Notify:      notifier,
		NotifyRepo:  notifyRepo,
		MQTT:        mqttClient,
		DB:          db.DB,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Greenhouse Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GREENHOUSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GREENHOUSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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

// mqttSubscriberAdapter adapts the infrastructure MQTT client to the
// telemetry monitor's Subscriber interface. The client's Subscribe takes
// the named mqtt.MessageHandler type, which keeps the concrete type from
// satisfying the interface directly even though the signatures match.
type mqttSubscriberAdapter struct {
	client *mqtt.Client
}

// Subscribe implements telemetry.Subscriber.
func (a *mqttSubscriberAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.client.Subscribe(topic, qos, handler)
}

// Unsubscribe implements telemetry.Subscriber.
func (a *mqttSubscriberAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}
