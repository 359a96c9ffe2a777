// Package config loads the vault's configuration inputs: cipher choice,
// flags, KDF profile, and the escrow server URL. It follows the layering
// convention used elsewhere in this codebase's ecosystem: built-in
// defaults, then an optional YAML file, then environment variable
// overrides for the values operators most often need to change per
// deployment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized configuration inputs for opening or
// initializing a vault.
type Config struct {
	// Cipher names one of {aes256-cbc, chacha20, aes256-gcm,
	// chacha20-poly1305}; empty means the implementation's default.
	Cipher string `yaml:"cipher"`

	// NoAuth, when true, skips the escrow server entirely: the
	// KDF-derived key is used directly as K_e.
	NoAuth bool `yaml:"noauth"`

	// KDFProfile is one of {interactive, moderate, sensitive}.
	KDFProfile string `yaml:"kdf_profile"`

	// ServerURL is the escrow server's base URL. It may also be supplied
	// via the RVAULT_SERVER_URL environment variable, which takes
	// precedence over the file.
	ServerURL string `yaml:"server_url"`
}

func defaults() Config {
	return Config{
		Cipher:     "chacha20-poly1305",
		NoAuth:     false,
		KDFProfile: "moderate",
	}
}

// Load reads configuration from path (if it exists), layering it over the
// built-in defaults, and applies recognized environment variable
// overrides on top. A missing file is not an error: defaults and
// environment variables alone are a valid configuration.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RVAULT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("RVAULT_CIPHER"); v != "" {
		cfg.Cipher = v
	}
	if v := os.Getenv("RVAULT_KDF_PROFILE"); v != "" {
		cfg.KDFProfile = v
	}
	if v := os.Getenv("RVAULT_NOAUTH"); v == "1" || v == "true" {
		cfg.NoAuth = true
	}
}
