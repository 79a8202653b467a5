// Package config handles loading and validating configuration for the
// Bluetooth skill and its satellite agents.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Taking broker settings from a Snips snips.toml
//   - Overriding with environment variables (SNIPSBT_*)
//   - Validation of required fields and cross-field constraints
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Skill.IntentPrefix)
package config
