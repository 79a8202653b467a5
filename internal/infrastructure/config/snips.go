package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/BurntSushi/toml"
)

// DefaultSnipsTOML is where a Snips platform keeps its shared settings.
const DefaultSnipsTOML = "/etc/snips.toml"

// snipsFile mirrors the parts of snips.toml the skill cares about.
type snipsFile struct {
	Common snipsCommon `toml:"snips-common"`
}

type snipsCommon struct {
	MQTT     string `toml:"mqtt"` // "host:port"
	Username string `toml:"mqtt_username"`
	Password string `toml:"mqtt_password"`
}

// ApplySnipsTOML overrides broker host, port and credentials with the
// [snips-common] section of a snips.toml. Keys that are absent leave the
// current value alone.
func ApplySnipsTOML(path string, mqtt *MQTTConfig) error {
	var f snipsFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return fmt.Errorf("reading snips.toml: %w", err)
	}

	if f.Common.MQTT != "" {
		host, portStr, err := net.SplitHostPort(f.Common.MQTT)
		if err != nil {
			return fmt.Errorf("snips.toml: invalid mqtt address %q: %w", f.Common.MQTT, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("snips.toml: invalid mqtt port %q: %w", portStr, err)
		}
		mqtt.Broker.Host = host
		mqtt.Broker.Port = port
	}
	if f.Common.Username != "" {
		mqtt.Auth.Username = f.Common.Username
	}
	if f.Common.Password != "" {
		mqtt.Auth.Password = f.Common.Password
	}
	return nil
}
