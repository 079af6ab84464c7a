package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WrapperConfig is the configuration for a single clippy-wrap invocation:
// which pattern to detect prompts with and how to reach the broker.
type WrapperConfig struct {
	Pattern PatternConfig `yaml:"pattern"`
	Broker  BrokerClientConfig `yaml:"broker"`
	Detector DetectorConfig `yaml:"detector"`
}

type PatternConfig struct {
	Preset string `yaml:"preset"`
	Custom string `yaml:"custom"`
}

type BrokerClientConfig struct {
	SocketPath       string `yaml:"socket_path"`
	ReconnectBackoffMs []int `yaml:"reconnect_backoff_ms"`
}

type DetectorConfig struct {
	MaxTurnBytes int `yaml:"max_turn_bytes"`
}

// BrokerConfig is the configuration for clippy-brokerd.
type BrokerConfig struct {
	Socket  BrokerSocketConfig  `yaml:"socket"`
	Metrics MetricsConfig       `yaml:"metrics"`
	Logging LoggingConfig       `yaml:"logging"`
}

type BrokerSocketConfig struct {
	RuntimeDir string `yaml:"runtime_dir"`
}

type MetricsConfig struct {
	Listen  string `yaml:"listen"`
	Enabled bool   `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadWrapperConfig reads and defaults a WrapperConfig from path. A
// missing file is not an error — callers get an all-defaults config, so
// clippy-wrap runs with a bare `--preset` flag and no config file at all.
func LoadWrapperConfig(path string) (*WrapperConfig, error) {
	var cfg WrapperConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if cfg.Pattern.Preset == "" && cfg.Pattern.Custom == "" {
		cfg.Pattern.Preset = "generic"
	}
	if cfg.Broker.SocketPath == "" {
		if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
			cfg.Broker.SocketPath = dir + "/clippy/broker.sock"
		}
	}
	if len(cfg.Broker.ReconnectBackoffMs) == 0 {
		cfg.Broker.ReconnectBackoffMs = []int{250, 500, 1000, 2000, 5000}
	}
	if cfg.Detector.MaxTurnBytes == 0 {
		cfg.Detector.MaxTurnBytes = 4 * 1024 * 1024
	}

	if envPreset := os.Getenv("CLIPPY_PATTERN_PRESET"); envPreset != "" {
		cfg.Pattern.Preset = envPreset
	}

	return &cfg, nil
}

// LoadBrokerConfig reads and defaults a BrokerConfig from path, the same
// missing-file-is-fine way LoadWrapperConfig does.
func LoadBrokerConfig(path string) (*BrokerConfig, error) {
	var cfg BrokerConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if cfg.Socket.RuntimeDir == "" {
		cfg.Socket.RuntimeDir = os.Getenv("XDG_RUNTIME_DIR")
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9469"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	return &cfg, nil
}
