// Package inspect implements the TCP adapter for the filesystem inspection
// protocol. It owns the listener, the per-connection session goroutines and
// the graceful shutdown machinery; the protocol operations themselves live
// in internal/protocol/inspect.
package inspect

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/inspectd/internal/logger"
	"github.com/marmos91/inspectd/pkg/auth"
	"github.com/marmos91/inspectd/pkg/metrics"
)

// Adapter is the TCP server for the inspection protocol.
//
// Each accepted connection is served by its own goroutine running the login
// handshake and command loop (see connection.go). The adapter coordinates
// graceful shutdown across all active sessions using context cancellation
// and wait groups.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Blocking reads interrupted via short deadline
//  4. Wait for active sessions to complete (up to Timeouts.Shutdown)
//  5. Force-close any remaining connections after timeout
//
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called multiple times.
type Adapter struct {
	// config holds the server configuration (port, timeouts, limits)
	config InspectConfig

	// backend holds the credential store and storage locations shared by
	// all sessions
	backend Backend

	// metrics provides optional Prometheus metrics collection.
	// If nil, no metrics are collected (zero overhead).
	metrics metrics.SessionMetrics

	// listener is the TCP listener, closed during shutdown to stop
	// accepting new connections
	listener   net.Listener
	listenerMu sync.RWMutex

	// listenerReady is closed when the listener is accepting connections.
	// Used by tests to synchronize with server startup.
	listenerReady chan struct{}

	// activeConns tracks running session goroutines for graceful shutdown
	activeConns sync.WaitGroup

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// connSemaphore limits concurrent connections when MaxConnections > 0,
	// nil otherwise
	connSemaphore chan struct{}

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map

	// shutdown is closed by initiateShutdown, monitored by Serve
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// shutdownCtx is cancelled during shutdown so sessions can detect it;
	// cancelSessions triggers that cancellation
	shutdownCtx    context.Context
	cancelSessions context.CancelFunc
}

// Backend bundles the per-process dependencies every session needs.
type Backend struct {
	// Store authenticates and registers accounts
	Store *auth.CredentialStore

	// LogDir is where per-session audit logs are written
	LogDir string

	// ScratchDir is where per-session file lists are kept
	ScratchDir string
}

// InspectTimeoutsConfig groups all timeout-related configuration.
type InspectTimeoutsConfig struct {
	// Read is the maximum duration to wait for a command or credential
	// line from the client. 0 means no timeout.
	Read time.Duration `mapstructure:"read" validate:"min=0"`

	// Write is the maximum duration for writing a single response chunk.
	// 0 means no timeout.
	Write time.Duration `mapstructure:"write" validate:"min=0"`

	// Shutdown is the maximum duration to wait for active sessions to
	// complete during graceful shutdown. After this timeout, remaining
	// connections are forcibly closed. Must be > 0.
	Shutdown time.Duration `mapstructure:"shutdown" validate:"required,gt=0"`
}

// InspectConfig holds configuration parameters for the inspection server.
//
// Default values (applied by New if zero):
//   - MaxConnections: 0 (unlimited)
//   - Timeouts.Read: 5m
//   - Timeouts.Write: 30s
//   - Timeouts.Shutdown: 30s
//
// Port 0 asks the kernel for an ephemeral port; the bound address is
// available via GetListenerAddr. The standard port lives in the config
// package defaults.
type InspectConfig struct {
	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client connections. When reached,
	// new connections wait until an existing one closes. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// Timeouts groups all timeout-related configuration
	Timeouts InspectTimeoutsConfig `mapstructure:"timeouts"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *InspectConfig) applyDefaults() {
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 5 * time.Minute
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
}

// validate checks that the configuration is usable.
func (c *InspectConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.Timeouts.Read < 0 {
		return fmt.Errorf("invalid timeouts.read %v: must be >= 0", c.Timeouts.Read)
	}
	if c.Timeouts.Write < 0 {
		return fmt.Errorf("invalid timeouts.write %v: must be >= 0", c.Timeouts.Write)
	}
	if c.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("invalid timeouts.shutdown %v: must be > 0", c.Timeouts.Shutdown)
	}
	return nil
}

// New creates a new Adapter with the specified configuration.
//
// Zero config values are replaced with defaults. sessionMetrics may be nil
// to disable metrics collection. The adapter is created stopped; call
// Serve() to start accepting connections.
//
// Panics if config validation fails (programmer error).
func New(cfg InspectConfig, backend Backend, sessionMetrics metrics.SessionMetrics) *Adapter {
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("invalid inspect config: %v", err))
	}

	var connSemaphore chan struct{}
	if cfg.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, cfg.MaxConnections)
		logger.Debug("Connection limit", "max_connections", cfg.MaxConnections)
	} else {
		logger.Debug("Connection limit", "max_connections", "unlimited")
	}

	shutdownCtx, cancelSessions := context.WithCancel(context.Background())

	return &Adapter{
		config:         cfg,
		backend:        backend,
		metrics:        sessionMetrics,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelSessions: cancelSessions,
		listenerReady:  make(chan struct{}),
	}
}

// Serve starts the server and blocks until the context is cancelled or an
// unrecoverable error occurs.
//
// Each accepted connection runs in its own goroutine. When the context is
// cancelled, Serve initiates graceful shutdown: the listener is closed,
// blocking reads are interrupted, and active sessions get up to
// Timeouts.Shutdown to finish before being force-closed.
//
// Returns nil on graceful shutdown, or an error if the listener fails to
// start or shutdown is not graceful. Serve should only be called once per
// Adapter instance.
func (s *Adapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create listener on port %d: %w", s.config.Port, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("Inspection server listening", "addr", listener.Addr().String())
	logger.Debug("Server config",
		"max_connections", s.config.MaxConnections,
		"read_timeout", s.config.Timeouts.Read,
		"write_timeout", s.config.Timeouts.Write,
		"shutdown_timeout", s.config.Timeouts.Shutdown)

	// Monitor context cancellation in a separate goroutine so the accept
	// loop stays tight
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", "error", ctx.Err())
		s.initiateShutdown()
	}()

	for {
		// Acquire a semaphore slot if connection limiting is enabled.
		// Blocks at MaxConnections until a session closes.
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				// Expected error: listener closed during shutdown
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting connection", "error", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		currentConns := s.connCount.Load()
		if s.metrics != nil {
			s.metrics.RecordConnectionAccepted()
			s.metrics.SetActiveConnections(currentConns)
		}

		logger.Debug("Connection accepted", "address", connAddr, "active", currentConns)

		conn := newConnection(s, tcpConn)
		go func(addr string, tcp net.Conn) {
			defer func() {
				s.activeConnections.Delete(addr)

				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				if s.metrics != nil {
					s.metrics.RecordConnectionClosed()
					s.metrics.SetActiveConnections(s.connCount.Load())
				}

				logger.Debug("Connection closed", "address", addr, "active", s.connCount.Load())
			}()

			conn.serve(s.shutdownCtx)
		}(connAddr, tcpConn)
	}
}

// initiateShutdown signals the server to begin graceful shutdown.
// Safe to call multiple times and from multiple goroutines.
func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")

		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener", "error", err)
			}
		}
		s.listenerMu.Unlock()

		// Unblock sessions waiting in Read so they notice shutdown quickly
		// instead of waiting out the full read timeout
		s.interruptBlockingReads()

		s.cancelSessions()
	})
}

// interruptBlockingReads sets a short deadline on all active connections to
// interrupt any blocking reads during shutdown.
func (s *Adapter) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	s.activeConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline on connection",
					"address", key, "error", err)
			}
		}
		return true
	})
	logger.Debug("Interrupted blocking reads on all connections")
}

// gracefulShutdown waits for active sessions to complete or the shutdown
// timeout to expire, force-closing whatever remains.
func (s *Adapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Graceful shutdown: waiting for active sessions",
		"active", activeCount, "timeout", s.config.Timeouts.Shutdown)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		logger.Info("Graceful shutdown complete: all sessions closed")

	case <-time.After(s.config.Timeouts.Shutdown):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded - forcing closure",
			"active", remaining, "timeout", s.config.Timeouts.Shutdown)

		s.forceCloseConnections()

		err = fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}

	return err
}

// forceCloseConnections closes all active TCP connections to accelerate
// shutdown after the graceful timeout expires.
func (s *Adapter) forceCloseConnections() {
	logger.Info("Force-closing active connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", "address", addr, "error", err)
		} else {
			closedCount++
			logger.Debug("Force-closed connection", "address", addr)
			if s.metrics != nil {
				s.metrics.RecordConnectionForceClosed()
			}
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed connections", "count", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for active sessions to finish.
//
// The context lets the caller bound the wait independently of the configured
// shutdown timeout; passing nil falls back to the configured behavior.
// Safe to call multiple times and concurrently with Serve().
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown complete: all sessions closed")
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Shutdown context cancelled", "active", remaining, "error", ctx.Err())
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
// Primarily used by tests and monitoring.
func (s *Adapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// GetListenerAddr returns the address the server is listening on. It blocks
// until the listener is ready, so tests can dial without racing startup.
func (s *Adapter) GetListenerAddr() string {
	<-s.listenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the configured TCP port.
func (s *Adapter) Port() int {
	return s.config.Port
}

// Protocol returns the protocol identifier for logging and metrics.
func (s *Adapter) Protocol() string {
	return "INSPECT"
}
