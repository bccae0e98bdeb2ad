package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so sessions and
// commands can be correlated when querying aggregated logs.
const (
	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID  = "session_id"  // Unique session identifier
	KeyClientAddr = "client_addr" // Remote address of the client connection
	KeyUsername   = "username"    // Authenticated username

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyCommand = "command" // Command name: TRAVERSE, SEARCH, INSPECT, EXIT
	KeyPath    = "path"    // File or directory path argument
	KeyPattern = "pattern" // Substring pattern for content search
	KeyOutcome = "outcome" // Authentication outcome: login, created, denied

	// ========================================================================
	// Operation Results
	// ========================================================================
	KeyFiles         = "files"          // Number of regular files visited
	KeyMatches       = "matches"        // Number of files matching a search
	KeyBytesStreamed = "bytes_streamed" // Bytes written while streaming a file

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message

	// ========================================================================
	// Server Lifecycle
	// ========================================================================
	KeyAddr        = "addr"         // Listen address
	KeyPort        = "port"         // Listen port
	KeyActiveConns = "active_conns" // Number of active connections
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// SessionIDAttr returns a slog.Attr for a session identifier
func SessionIDAttr(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ClientAddrAttr returns a slog.Attr for a client address
func ClientAddrAttr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// UsernameAttr returns a slog.Attr for a username
func UsernameAttr(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// CommandAttr returns a slog.Attr for a command name
func CommandAttr(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// PathAttr returns a slog.Attr for a file or directory path
func PathAttr(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// PatternAttr returns a slog.Attr for a search pattern
func PatternAttr(p string) slog.Attr {
	return slog.String(KeyPattern, p)
}

// DurationMsAttr returns a slog.Attr for duration in milliseconds
func DurationMsAttr(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
