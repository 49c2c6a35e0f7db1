package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for a channeld run, grounded on the
// Rust daemon's Config type (daemon/src/config.rs) but flattened to what a
// single process running both ends of a loopback-joined pair needs: no
// command-line Role/Input enums, since channeld always runs both.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// IdentityNameInitiator and IdentityNameResponder label the two static
	// keys generated for this run in log output, matching the Rust
	// daemon's identity_name field.
	IdentityNameInitiator string `yaml:"identity_name_initiator"`
	IdentityNameResponder string `yaml:"identity_name_responder"`

	// ServiceAddress is the hex-encoded worker address the responder's
	// payload-printing worker registers under, matching the Rust worker's
	// RouterAddress::worker_router_address_from_str convention.
	ServiceAddress string `yaml:"service_address"`
}

// defaultConfig mirrors the Rust CLI's defaults (cli::Args::default()).
func defaultConfig() Config {
	return Config{
		LogLevel:              "info",
		IdentityNameInitiator: "initiator",
		IdentityNameResponder: "responder",
		ServiceAddress:        "01242020",
	}
}

// loadConfig reads a YAML config file at path, falling back to defaults for
// any field left unset. An empty path returns the defaults unchanged.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("channeld: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("channeld: parse config %s: %w", path, err)
	}
	return cfg, nil
}
