package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/constants"
)

// Layer represents a configuration layer source.
type Layer string

const (
	// LayerDefaults represents default configuration values.
	LayerDefaults Layer = "defaults"

	// LayerFile represents configuration from a YAML file.
	LayerFile Layer = "file"

	// LayerEnv represents configuration from environment variables.
	LayerEnv Layer = "env"

	// LayerFlags represents configuration from command-line flags.
	LayerFlags Layer = "flags"
)

// LayeredLoader loads configuration in order: defaults, file, environment,
// flags. Each layer overrides values from previous layers.
type LayeredLoader struct {
	enabledLayers map[Layer]bool
	flags         *pflag.FlagSet
}

// NewLayeredLoader creates a loader with every layer enabled. The flag layer
// only applies once a flag set is bound with BindFlags.
func NewLayeredLoader() *LayeredLoader {
	return &LayeredLoader{
		enabledLayers: map[Layer]bool{
			LayerDefaults: true,
			LayerFile:     true,
			LayerEnv:      true,
			LayerFlags:    true,
		},
	}
}

// EnableLayer enables a specific configuration layer.
func (l *LayeredLoader) EnableLayer(layer Layer) {
	l.enabledLayers[layer] = true
}

// DisableLayer disables a specific configuration layer.
func (l *LayeredLoader) DisableLayer(layer Layer) {
	l.enabledLayers[layer] = false
}

// BindFlags attaches a flag set registered with RegisterFlags.
func (l *LayeredLoader) BindFlags(fs *pflag.FlagSet) {
	l.flags = fs
}

// Load builds the configuration. A missing file at configPath is not an error.
func (l *LayeredLoader) Load(configPath string) (*Config, error) {
	cfg := &Config{}
	if l.enabledLayers[LayerDefaults] {
		cfg = DefaultConfig()
	}

	if l.enabledLayers[LayerFile] && configPath != "" {
		if err := mergeFromFile(cfg, configPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if l.enabledLayers[LayerEnv] {
		if err := LoadFromEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	if l.enabledLayers[LayerFlags] && l.flags != nil {
		if err := applyFlags(cfg, l.flags); err != nil {
			return nil, fmt.Errorf("failed to apply flags: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfigPath returns ~/.gecko-profiler/config.yaml, or
// $GECKO_PROFILER_CONFIG/config.yaml when the override is set.
func DefaultConfigPath() string {
	if dir := os.Getenv(constants.EnvConfigDir); dir != "" {
		return filepath.Join(dir, constants.ConfigFile)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, constants.DefaultDir, constants.ConfigFile)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func mergeFromFile(cfg *Config, path string) error {
	// #nosec G304 -- path comes from the --config flag or the default location.
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}

	return nil
}
