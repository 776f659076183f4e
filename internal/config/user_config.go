package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
)

// UserConfig is the per-user default overrides for things the pipeline
// document itself leaves to the invoking environment: which cluster
// backend to assume, where to reach a notify endpoint by default, and
// who cluster submit emails should go to.
type UserConfig struct {
	// Cluster overrides the document's `cluster:` key / autodetection.
	Cluster string `json:"cluster,omitempty" envconfig:"cluster"`
	// Notify overrides the document's `notify:` key.
	Notify string `json:"notify,omitempty" envconfig:"notify"`
	// Email is used for cluster job completion notifications.
	Email string `json:"email,omitempty" envconfig:"email"`
}

// configRelPath is where the user config file lives under the XDG
// config home.
var configRelPath = filepath.Join("towpath", "config.json")

// WriteConfigFile writes config to path.
func WriteConfigFile(path string, cfg *UserConfig) error {
	jsonBytes, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, jsonBytes, 0o644)
}

// WriteUserConfigFile writes the user-level config file.
func WriteUserConfigFile(cfg *UserConfig) error {
	path, err := xdg.ConfigFile(configRelPath)
	if err != nil {
		return err
	}
	return WriteConfigFile(path, cfg)
}

// ReadConfigFile reads a config file at path, then overlays any
// TOWPATH_-prefixed environment variables on top of it.
func ReadConfigFile(path string) (*UserConfig, error) {
	cfg := &UserConfig{}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, overlayEnv(cfg)
	}
	if err := json.Unmarshal(b, cfg); err != nil {
		return cfg, err
	}
	return cfg, overlayEnv(cfg)
}

// ReadUserConfigFile reads the user-level config file, falling back to
// defaults (and environment overrides) if it doesn't exist yet.
func ReadUserConfigFile() (*UserConfig, error) {
	path, err := xdg.ConfigFile(configRelPath)
	if err != nil {
		cfg := &UserConfig{}
		return cfg, overlayEnv(cfg)
	}
	return ReadConfigFile(path)
}

// DeleteUserConfigFile resets the user-level config file to defaults.
func DeleteUserConfigFile() error {
	return WriteUserConfigFile(&UserConfig{})
}

func overlayEnv(cfg *UserConfig) error {
	return envconfig.Process("towpath", cfg)
}
