// bluetooth-satellite runs next to a Bluetooth adapter and answers the
// skill's requests for one site: scans, connect, disconnect, remove and
// site info.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/bluez"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/config"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/logging"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/satellite"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/tasks"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "bluetooth-satellite"
	defaultConfigPath = "configs/config.yaml"

	// defaultClientID is the skill's client id; satellites append their site.
	defaultClientID = "snips-bluetooth"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting Snips-Bluetooth satellite",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version).With("site_id", cfg.Satellite.SiteID)
	defer log.Close()
	log.Info("configuration loaded", "path", configPath, "adapter", cfg.Satellite.Adapter)

	adapter, err := bluez.Open(cfg.Satellite.Adapter)
	if err != nil {
		return fmt.Errorf("opening Bluetooth adapter: %w", err)
	}
	defer func() {
		if closeErr := adapter.Close(); closeErr != nil {
			log.Error("error closing adapter", "error", closeErr)
		}
	}()
	adapter.SetLogger(log.With("component", "bluez"))
	log.Info("Bluetooth adapter ready", "adapter", adapter.Name())

	mqttCfg := satelliteMQTT(cfg)
	mqttClient, err := mqtt.Connect(mqttCfg)
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
		"broker", fmt.Sprintf("%s:%d", mqttCfg.Broker.Host, mqttCfg.Broker.Port),
		"client_id", mqttCfg.Broker.ClientID,
	)

	registry := tasks.NewRegistry()
	registry.SetLogger(log.With("component", "tasks"))

	agent, err := satellite.New(satellite.Options{
		Config:    cfg.Satellite,
		QoS:       byte(cfg.MQTT.QoS),
		QueueSize: cfg.Skill.QueueSize,
		MQTT:      mqttClient,
		Adapter:   adapter,
		Tasks:     registry,
		Logger:    log.With("component", "satellite"),
	})
	if err != nil {
		return fmt.Errorf("creating satellite: %w", err)
	}
	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("starting satellite: %w", err)
	}
	defer agent.Stop()

	// The skill may have restarted while we were away; announce again.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected, announcing site")
		if pubErr := agent.PublishSiteInfo(ctx); pubErr != nil {
			log.Warn("site info after reconnect failed", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("systemd notify failed", "error", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

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

// satelliteMQTT gives the satellite its own client id when the config still
// carries the shared default, so skill and satellites can share one file.
func satelliteMQTT(cfg *config.Config) config.MQTTConfig {
	out := cfg.MQTT
	if out.Broker.ClientID == "" || out.Broker.ClientID == defaultClientID {
		out.Broker.ClientID = defaultClientID + "-" + cfg.Satellite.SiteID
	}
	return out
}
