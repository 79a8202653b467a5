package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/naming"
)

// Config is the root configuration shared by the skill and the satellite.
// All configuration is loaded from YAML and can be overridden by environment
// variables and, for the broker, by a legacy snips.toml.
type Config struct {
	Skill     SkillConfig     `yaml:"skill"`
	Satellite SatelliteConfig `yaml:"satellite"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`

	// SnipsTOML is the path to a snips.toml whose [snips-common] broker
	// settings override the mqtt section. Empty disables it.
	SnipsTOML string `yaml:"snips_toml"`
}

// SkillConfig contains settings for the voice skill.
type SkillConfig struct {
	// IntentPrefix is the intent namespace, e.g. "domi" for
	// "domi:BluetoothDevicesScan".
	IntentPrefix string `yaml:"intent_prefix"`

	// HereToken is the room slot value meaning "the room I'm in".
	HereToken string `yaml:"here_token"`

	// ScanWindow is how long a scan may go unanswered (seconds).
	ScanWindow int `yaml:"scan_window"`

	// InjectionEntity is the recognizer entity that learns discovered names.
	InjectionEntity string `yaml:"injection_entity"`

	// QueueSize bounds the inbound message queue.
	QueueSize int `yaml:"queue_size"`

	// PersistState stores site snapshots in the database.
	PersistState bool `yaml:"persist_state"`

	// Synonyms maps raw device names to spoken forms for every site.
	Synonyms naming.Table `yaml:"synonyms"`
}

// SatelliteConfig contains settings for the per-site adapter agent.
type SatelliteConfig struct {
	SiteID   string `yaml:"site_id"`
	RoomName string `yaml:"room_name"`

	// Adapter is the BlueZ adapter name, e.g. "hci0".
	Adapter string `yaml:"adapter"`

	// ScanDuration is how long discovery runs (seconds). It must be shorter
	// than the skill's scan window.
	ScanDuration int `yaml:"scan_duration"`

	// CommandTimeout bounds connect, disconnect and remove (seconds).
	CommandTimeout int `yaml:"command_timeout"`

	// DeviceNames are this site's synonyms, sent with every site info.
	DeviceNames naming.Table `yaml:"device_names"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the read-only HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file log settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values
//  3. snips.toml broker settings, when snips_toml is set
//  4. Environment variables (SNIPSBT_SECTION_KEY)
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.SnipsTOML != "" {
		if err := ApplySnipsTOML(cfg.SnipsTOML, &cfg.MQTT); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration, used when no file exists.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Skill: SkillConfig{
			IntentPrefix:    "domi",
			HereToken:       "hier",
			ScanWindow:      30,
			InjectionEntity: "audio_devices",
			QueueSize:       256,
			PersistState:    true,
		},
		Satellite: SatelliteConfig{
			SiteID:         "default",
			Adapter:        "hci0",
			ScanDuration:   25,
			CommandTimeout: 20,
		},
		Database: DatabaseConfig{
			Path:        "./data/bluetooth.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "snips-bluetooth",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8089,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "bluetooth",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
// Variables follow the pattern SNIPSBT_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("SNIPSBT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SNIPSBT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SNIPSBT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SNIPSBT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("SNIPSBT_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}

	// Satellite
	if v := os.Getenv("SNIPSBT_SITE_ID"); v != "" {
		cfg.Satellite.SiteID = v
	}
	if v := os.Getenv("SNIPSBT_ROOM_NAME"); v != "" {
		cfg.Satellite.RoomName = v
	}
	if v := os.Getenv("SNIPSBT_ADAPTER"); v != "" {
		cfg.Satellite.Adapter = v
	}

	// Database
	if v := os.Getenv("SNIPSBT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("SNIPSBT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SNIPSBT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SNIPSBT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	// Skill
	if c.Skill.IntentPrefix == "" {
		errs = append(errs, "skill.intent_prefix is required")
	}
	if c.Skill.HereToken == "" {
		errs = append(errs, "skill.here_token is required")
	}
	if c.Skill.ScanWindow < 1 {
		errs = append(errs, "skill.scan_window must be at least 1 second")
	}
	if c.Skill.InjectionEntity == "" {
		errs = append(errs, "skill.injection_entity is required")
	}
	if c.Skill.QueueSize < 1 {
		errs = append(errs, "skill.queue_size must be positive")
	}
	for _, conflict := range c.Skill.Synonyms.Conflicts() {
		errs = append(errs, fmt.Sprintf("skill.synonyms: %q is claimed by %s",
			conflict.Spoken, strings.Join(conflict.Raws, ", ")))
	}

	// Satellite
	if c.Satellite.SiteID == "" {
		errs = append(errs, "satellite.site_id is required")
	}
	if c.Satellite.Adapter == "" {
		errs = append(errs, "satellite.adapter is required")
	}
	if c.Satellite.ScanDuration < 1 {
		errs = append(errs, "satellite.scan_duration must be at least 1 second")
	} else if c.Satellite.ScanDuration >= c.Skill.ScanWindow {
		errs = append(errs, "satellite.scan_duration must be shorter than skill.scan_window")
	}
	if c.Satellite.CommandTimeout < 1 {
		errs = append(errs, "satellite.command_timeout must be at least 1 second")
	}
	for _, conflict := range c.Satellite.DeviceNames.Conflicts() {
		errs = append(errs, fmt.Sprintf("satellite.device_names: %q is claimed by %s",
			conflict.Spoken, strings.Join(conflict.Raws, ", ")))
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Output {
	case "stdout", "stderr", "":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr or file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetScanWindow returns the skill scan window as a Duration.
func (c *Config) GetScanWindow() time.Duration {
	return time.Duration(c.Skill.ScanWindow) * time.Second
}

// GetScanDuration returns the satellite discovery duration as a Duration.
func (c *Config) GetScanDuration() time.Duration {
	return time.Duration(c.Satellite.ScanDuration) * time.Second
}

// GetCommandTimeout returns the satellite command timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Satellite.CommandTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
