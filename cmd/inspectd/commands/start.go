package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/inspectd/internal/logger"
	adapter "github.com/marmos91/inspectd/pkg/adapter/inspect"
	"github.com/marmos91/inspectd/pkg/auth"
	"github.com/marmos91/inspectd/pkg/config"
	"github.com/marmos91/inspectd/pkg/metrics"
	prommetrics "github.com/marmos91/inspectd/pkg/metrics/prometheus"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the inspectd server",
	Long: `Start the inspectd server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/inspectd/config.yaml.

Examples:
  # Start with default config location
  inspectd start

  # Start with custom config file
  inspectd start --config /etc/inspectd/config.yaml

  # Start with environment variable overrides
  INSPECTD_LOGGING_LEVEL=DEBUG inspectd start`,
	RunE: runStart,
}

var pidFile string

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (optional)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics before the adapter so session metrics register
	// against a live registry
	var sessionMetrics metrics.SessionMetrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		sessionMetrics = prommetrics.NewSessionMetrics()
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	store := auth.NewCredentialStore(cfg.Storage.UsersFile)
	logger.Info("Credential store ready", "path", store.Path())

	backend := adapter.Backend{
		Store:      store,
		LogDir:     cfg.Storage.LogDir,
		ScratchDir: cfg.Storage.ScratchDir,
	}

	srv := adapter.New(cfg.Server, backend, sessionMetrics)
	logger.Info("Adapter enabled", "protocol", srv.Protocol(), "port", srv.Port())

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Start servers in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Serve(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
