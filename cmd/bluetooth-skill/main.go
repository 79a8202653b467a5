// bluetooth-skill is the voice skill of Snips-Bluetooth.
//
// It listens for Bluetooth intents on the Hermes bus, keeps a cache of every
// site's adapter state, forwards commands to the site satellites and speaks
// their asynchronous answers back to the right session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	_ "github.com/MrJohnZoidberg/Snips-Bluetooth/migrations"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/api"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/audit"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/config"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/database"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/influxdb"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/logging"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/skill"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "bluetooth-skill"
	defaultConfigPath = "configs/config.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the skill together and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting Snips-Bluetooth skill",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version)
	defer log.Close()
	log.Info("configuration loaded", "path", configPath, "intent_prefix", cfg.Skill.IntentPrefix)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	store := site.NewStore(naming.NewResolver(cfg.Skill.Synonyms))
	store.SetLogger(log.With("component", "site"))
	store.SetHereToken(cfg.Skill.HereToken)
	if cfg.Skill.PersistState {
		store.SetRepository(site.NewSQLiteRepository(db.DB))
		if loadErr := store.LoadFromRepository(ctx); loadErr != nil {
			return fmt.Errorf("loading site snapshots: %w", loadErr)
		}
		log.Info("site snapshots loaded", "sites", len(store.Sites()))
	}

	tracker := correlation.NewTracker(cfg.GetScanWindow())
	tracker.SetLogger(log.With("component", "correlation"))

	auditRepo := audit.NewSQLiteRepository(db.DB)

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
	mqttClient.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	// Telemetry stays a nil interface when InfluxDB is off.
	var telemetry skill.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		telemetry = influxClient
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)
	store.SetOnChange(hub.SiteUpdated)

	svc, err := skill.New(skill.Options{
		Config:    cfg.Skill,
		QoS:       byte(cfg.MQTT.QoS),
		MQTT:      mqttClient,
		Store:     store,
		Tracker:   tracker,
		Recorder:  audit.NewRecorder(auditRepo),
		Telemetry: telemetry,
		Notifier:  hub,
		Logger:    log.With("component", "skill"),
	})
	if err != nil {
		return fmt.Errorf("creating skill: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting skill: %w", err)
	}
	defer svc.Stop()

	// Subscriptions survive reconnects inside the client; the site cache may
	// not, so every reconnect asks all satellites again.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, refreshing sites")
		if refreshErr := svc.Refresh(); refreshErr != nil {
			log.Warn("site refresh failed", "error", refreshErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Store:   store,
			Tracker: tracker,
			Version: version,
			Audit:   auditRepo,
			Health:  health,
			MQTT:    mqttClient,
			DB:      db.DB,
			Hub:     hub,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	notifySystemd(log, daemon.SdNotifyReady)
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	notifySystemd(log, daemon.SdNotifyStopping)
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns SNIPSBT_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("SNIPSBT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck returns the first failing component.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// notifySystemd reports state to systemd. Outside a notify unit it is a no-op.
func notifySystemd(log *logging.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Warn("systemd notify failed", "state", state, "error", err)
	}
}
