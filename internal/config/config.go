package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen            = "127.0.0.1:3000"
	DefaultRegistration      = "strict"
	DefaultRelayTimeout      = 10 * time.Second
	DefaultRelayDialTimeout  = 5 * time.Second
	DefaultRelayReadSize     = 1024
	DefaultUploadMaxBytes    = 16 << 20
	DefaultLogLevel          = "info"
	DefaultCommandListen     = ":4000"
	DefaultUpdateIntervalSec = 5
	DefaultTelemetryEncoding = "json"
)

// Config holds both directory server and city agent settings.
type Config struct {
	Server *ServerConfig `yaml:"server,omitempty"`
	City   *CityConfig   `yaml:"city,omitempty"`
}

// ServerConfig is used by the directory server process.
type ServerConfig struct {
	Listen           string        `yaml:"listen"`
	Registration     string        `yaml:"registration"` // strict|overwrite
	RelayTimeout     time.Duration `yaml:"relay_timeout"`
	RelayDialTimeout time.Duration `yaml:"relay_dial_timeout"`
	RelayReadSize    int           `yaml:"relay_read_size"`
	UploadDir        string        `yaml:"upload_dir"`
	UploadMaxBytes   int64         `yaml:"upload_max_bytes"`
	MetricsPath      string        `yaml:"metrics_path"`
	LogLevel         string        `yaml:"log_level"`
}

// CityConfig is used by the agent running next to a simulation.
type CityConfig struct {
	Name              string   `yaml:"name"`
	ID                string   `yaml:"id"`
	Map               string   `yaml:"map"`
	Directory         string   `yaml:"directory"`
	CommandListen     string   `yaml:"command_listen"`
	Advertise         string   `yaml:"advertise"`
	STUNServers       []string `yaml:"stun_servers"`
	UpdateIntervalSec int      `yaml:"update_interval_sec"`
	TelemetryEncoding string   `yaml:"telemetry_encoding"` // json|cbor
	LogLevel          string   `yaml:"log_level"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Server == nil && cfg.City == nil {
		return fmt.Errorf("config must contain server or city section")
	}
	if cfg.Server != nil {
		if cfg.Server.Listen == "" {
			return fmt.Errorf("server.listen is required")
		}
		switch cfg.Server.Registration {
		case "strict", "overwrite":
		default:
			return fmt.Errorf("server.registration must be strict or overwrite, got %q", cfg.Server.Registration)
		}
		if cfg.Server.RelayReadSize <= 0 {
			return fmt.Errorf("server.relay_read_size must be positive")
		}
	}
	if cfg.City != nil {
		if cfg.City.Name == "" {
			return fmt.Errorf("city.name is required")
		}
		if cfg.City.Directory == "" {
			return fmt.Errorf("city.directory is required")
		}
		if _, _, err := net.SplitHostPort(cfg.City.CommandListen); err != nil {
			return fmt.Errorf("city.command_listen: %w", err)
		}
		switch cfg.City.TelemetryEncoding {
		case "json", "cbor":
		default:
			return fmt.Errorf("city.telemetry_encoding must be json or cbor, got %q", cfg.City.TelemetryEncoding)
		}
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Server != nil {
		if cfg.Server.Listen == "" {
			cfg.Server.Listen = DefaultListen
		}
		if cfg.Server.Registration == "" {
			cfg.Server.Registration = DefaultRegistration
		}
		if cfg.Server.RelayTimeout == 0 {
			cfg.Server.RelayTimeout = DefaultRelayTimeout
		}
		if cfg.Server.RelayDialTimeout == 0 {
			cfg.Server.RelayDialTimeout = DefaultRelayDialTimeout
		}
		if cfg.Server.RelayReadSize == 0 {
			cfg.Server.RelayReadSize = DefaultRelayReadSize
		}
		if cfg.Server.UploadMaxBytes == 0 {
			cfg.Server.UploadMaxBytes = DefaultUploadMaxBytes
		}
		if cfg.Server.LogLevel == "" {
			cfg.Server.LogLevel = DefaultLogLevel
		}
	}

	if cfg.City != nil {
		if cfg.City.CommandListen == "" {
			cfg.City.CommandListen = DefaultCommandListen
		}
		if cfg.City.UpdateIntervalSec == 0 {
			cfg.City.UpdateIntervalSec = DefaultUpdateIntervalSec
		}
		if cfg.City.TelemetryEncoding == "" {
			cfg.City.TelemetryEncoding = DefaultTelemetryEncoding
		}
		if cfg.City.LogLevel == "" {
			cfg.City.LogLevel = DefaultLogLevel
		}
	}
}
