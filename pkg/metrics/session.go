package metrics

import (
	"time"
)

// SessionMetrics provides observability for the inspection server's
// connection and command handling.
//
// Implementations collect metrics about connection lifecycle, authentication
// outcomes, command latency and throughput. This interface is optional -
// pass nil to disable metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := prometheus.NewSessionMetrics()
//	adapter := inspect.New(config, backend, m)
//
//	// Without metrics (pass nil for zero overhead)
//	adapter := inspect.New(config, backend, nil)
type SessionMetrics interface {
	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the force-closed connections counter.
	// Called when connections are forcibly closed after shutdown timeout.
	RecordConnectionForceClosed()

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordAuthOutcome records the result of a login handshake.
	//
	// Parameters:
	//   - outcome: "login", "created" or "denied"
	RecordAuthOutcome(outcome string)

	// RecordCommand records a completed command with its duration.
	//
	// Parameters:
	//   - command: command name (e.g., "TRAVERSE", "SEARCH", "INSPECT")
	//   - duration: time taken to serve the command
	RecordCommand(command string, duration time.Duration)

	// RecordUnknownCommand increments the rejected-command counter.
	RecordUnknownCommand()

	// RecordFilesWalked adds to the total of regular files visited by walks.
	RecordFilesWalked(count int)

	// RecordBytesStreamed adds to the total of file bytes streamed to clients.
	RecordBytesStreamed(bytes int64)
}
