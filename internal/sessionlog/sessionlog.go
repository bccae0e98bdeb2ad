// Package sessionlog maintains the per-session audit trail.
//
// Each authenticated session gets its own append-only log file named
// <dir>/<username>_<sessionID>.log recording the authentication event and
// every command the client issued. The file survives the session so
// operators can reconstruct what a client did after the fact.
package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Log is an append-only audit log for a single client session.
// All methods are safe on a nil receiver, so callers can continue serving
// a session even when the log file could not be opened.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open creates (or appends to) the audit log for the given session.
// The directory is created if it does not exist.
func Open(dir, username, sessionID string) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", username, sessionID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log %q: %w", path, err)
	}

	return &Log{f: f, path: path}, nil
}

// Path returns the log file path, or empty for a nil log.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Write appends a single line to the audit log. Write errors are swallowed:
// a failing audit log must not take the session down.
func (l *Log) Write(message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	fmt.Fprintln(l.f, message)
}

// Authenticated records a successful login.
func (l *Log) Authenticated() {
	l.Write("User authenticated")
}

// Registered records a first-time account creation.
func (l *Log) Registered() {
	l.Write("New user registered securely")
}

// Command records a command line received from the client.
func (l *Log) Command(line string) {
	l.Write("Command: " + line)
}

// Ended records the end of the session.
func (l *Log) Ended() {
	l.Write("Session ended")
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
