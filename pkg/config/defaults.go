package config

import (
	"strings"
	"time"

	adapter "github.com/marmos91/inspectd/pkg/adapter/inspect"
)

const (
	// DefaultServerPort is the default TCP port for the inspection protocol
	DefaultServerPort = 7070

	// DefaultMetricsPort is the default port for the Prometheus endpoint
	DefaultMetricsPort = 9090

	// DefaultMaxConnections is the default concurrent session limit
	DefaultMaxConnections = 64

	// DefaultShutdownTimeout is the default process shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second
)

// GetDefaultConfig returns a configuration with sensible defaults.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields with defaults. Explicitly set
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(logging *LoggingConfig) {
	if logging.Level == "" {
		logging.Level = "INFO"
	} else {
		logging.Level = strings.ToUpper(logging.Level)
	}

	if logging.Format == "" {
		logging.Format = "text"
	}

	if logging.Output == "" {
		logging.Output = "stdout"
	}
}

func applyServerDefaults(server *adapter.InspectConfig) {
	if server.Port == 0 {
		server.Port = DefaultServerPort
	}

	if server.MaxConnections == 0 {
		server.MaxConnections = DefaultMaxConnections
	}

	if server.Timeouts.Read == 0 {
		server.Timeouts.Read = 5 * time.Minute
	}

	if server.Timeouts.Write == 0 {
		server.Timeouts.Write = 30 * time.Second
	}

	if server.Timeouts.Shutdown == 0 {
		server.Timeouts.Shutdown = DefaultShutdownTimeout
	}
}

func applyStorageDefaults(storage *StorageConfig) {
	if storage.UsersFile == "" {
		storage.UsersFile = "data/users.txt"
	}

	if storage.LogDir == "" {
		storage.LogDir = "logs"
	}

	if storage.ScratchDir == "" {
		storage.ScratchDir = "data/scratch"
	}
}

func applyMetricsDefaults(metrics *MetricsConfig) {
	if metrics.Port == 0 {
		metrics.Port = DefaultMetricsPort
	}
}
