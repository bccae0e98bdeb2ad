package inspect

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/inspectd/internal/logger"
	protocol "github.com/marmos91/inspectd/internal/protocol/inspect"
	"github.com/marmos91/inspectd/internal/sessionlog"
	"github.com/marmos91/inspectd/pkg/auth"
)

// readBufferSize bounds a single credential or command line.
const readBufferSize = 4096

// Authentication replies. Clients match on these exact strings.
const (
	usernamePrompt = "Username: "
	passwordPrompt = "Password: "

	replyLoginOK        = "Login successful\n"
	replyAccountCreated = "Account created\n"
	replyBadPassword    = "Incorrect password\n"

	replyUnknownCommand = "ERROR: Unknown command\n"
)

// connection serves one client session: the login handshake followed by the
// command loop. Each connection runs in its own goroutine; a panic in one
// session is recovered and never takes down the server.
type connection struct {
	adapter *Adapter
	conn    net.Conn

	sessionID string
	username  string

	audit *sessionlog.Log
	list  *protocol.FileList

	lc *logger.LogContext
}

func newConnection(a *Adapter, tcpConn net.Conn) *connection {
	sessionID := uuid.NewString()
	return &connection{
		adapter:   a,
		conn:      tcpConn,
		sessionID: sessionID,
		lc:        logger.NewLogContext(sessionID, tcpConn.RemoteAddr().String()),
	}
}

// serve runs the session to completion. ctx is the adapter's shutdown
// context: sessions in the middle of a command run it to completion, but
// shutdown interrupts any blocking read, which ends the session here.
func (c *connection) serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(logger.WithContext(ctx, c.lc), "Panic in session", "panic", fmt.Sprintf("%v", r))
		}
		c.teardown()
	}()

	if !c.authenticate(ctx) {
		return
	}

	c.commandLoop(ctx)
}

// authenticate runs the two-prompt login handshake. Returns true when the
// session may proceed to the command loop; on any failure the caller closes
// the connection.
func (c *connection) authenticate(ctx context.Context) bool {
	lctx := logger.WithContext(ctx, c.lc)

	if err := c.send(usernamePrompt); err != nil {
		logger.DebugCtx(lctx, "Failed to send username prompt", logger.KeyError, err.Error())
		return false
	}
	username, err := c.readLine()
	if err != nil {
		logger.DebugCtx(lctx, "Failed to read username", logger.KeyError, err.Error())
		return false
	}

	if err := c.send(passwordPrompt); err != nil {
		logger.DebugCtx(lctx, "Failed to send password prompt", logger.KeyError, err.Error())
		return false
	}
	password, err := c.readLine()
	if err != nil {
		logger.DebugCtx(lctx, "Failed to read password", logger.KeyError, err.Error())
		return false
	}

	outcome, err := c.adapter.backend.Store.Authenticate(username, password)
	if err != nil {
		// Storage failure: close without a reply rather than leak
		// whether the account exists
		logger.ErrorCtx(lctx, "Credential store failure", logger.KeyError, err.Error())
		return false
	}

	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordAuthOutcome(outcome.String())
	}

	c.username = username
	c.lc = c.lc.WithUsername(username)
	lctx = logger.WithContext(ctx, c.lc)

	switch outcome {
	case auth.OutcomeLogin:
		c.openSessionFiles(lctx)
		c.audit.Authenticated()
		if err := c.send(replyLoginOK); err != nil {
			return false
		}
		logger.InfoCtx(lctx, "Client authenticated", logger.KeyOutcome, outcome.String())
		return true

	case auth.OutcomeCreated:
		c.openSessionFiles(lctx)
		c.audit.Registered()
		if err := c.send(replyAccountCreated); err != nil {
			return false
		}
		logger.InfoCtx(lctx, "New account registered", logger.KeyOutcome, outcome.String())
		return true

	default:
		c.send(replyBadPassword)
		logger.InfoCtx(lctx, "Authentication denied", logger.KeyOutcome, outcome.String())
		return false
	}
}

// openSessionFiles opens the audit log and the per-session file list.
// Either failing is logged but does not abort the session.
func (c *connection) openSessionFiles(lctx context.Context) {
	audit, err := sessionlog.Open(c.adapter.backend.LogDir, c.username, c.sessionID)
	if err != nil {
		logger.WarnCtx(lctx, "Failed to open session log", logger.KeyError, err.Error())
	}
	c.audit = audit

	list, err := protocol.NewFileList(c.adapter.backend.ScratchDir, c.sessionID)
	if err != nil {
		logger.WarnCtx(lctx, "Failed to create file list", logger.KeyError, err.Error())
	}
	c.list = list
}

// commandLoop reads and dispatches commands until EXIT, a read failure, or
// client disconnect.
func (c *connection) commandLoop(ctx context.Context) {
	for {
		line, err := c.readLine()
		if err != nil {
			if err != io.EOF {
				logger.DebugCtx(logger.WithContext(ctx, c.lc), "Session read ended", logger.KeyError, err.Error())
			}
			return
		}

		c.audit.Command(line)

		name := commandName(line)
		lc := c.lc.WithCommand(name)
		lctx := logger.WithContext(ctx, lc)
		start := time.Now()

		var done bool
		switch {
		case strings.HasPrefix(line, "TRAVERSE"):
			c.handleTraverse(lctx, argAfter(line, 9))

		case strings.HasPrefix(line, "SEARCH"):
			c.handleSearch(lctx, line)

		case strings.HasPrefix(line, "INSPECT"):
			c.handleInspect(lctx, argAfter(line, 8))

		case strings.HasPrefix(line, "EXIT"):
			c.audit.Ended()
			logger.InfoCtx(lctx, "Session ended by client")
			done = true

		default:
			c.send(replyUnknownCommand)
			c.send(protocol.Terminator)
			if c.adapter.metrics != nil {
				c.adapter.metrics.RecordUnknownCommand()
			}
			logger.DebugCtx(lctx, "Unknown command rejected")
		}

		if c.adapter.metrics != nil {
			c.adapter.metrics.RecordCommand(name, time.Since(start))
		}
		if done {
			return
		}
	}
}

// handleTraverse walks the requested directory, streaming one line per
// entry, then reports the file total.
func (c *connection) handleTraverse(lctx context.Context, path string) {
	if c.list != nil {
		if err := c.list.Reset(); err != nil {
			logger.WarnCtx(lctx, "Failed to reset file list", logger.KeyError, err.Error())
		}
	}

	count, err := protocol.Walk(path, c, c.list)
	if err != nil {
		logger.ErrorCtx(lctx, "Traversal aborted", logger.KeyPath, path, logger.KeyError, err.Error())
		return
	}

	c.send(fmt.Sprintf("\nTotal Files: %d\n", count))
	c.send(protocol.Terminator)

	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordFilesWalked(count)
	}
	logger.InfoCtx(lctx, "Traversal completed", logger.KeyPath, path, logger.KeyFiles, count)
}

// handleSearch walks the requested directory, then scans the visited files
// for the pattern. A malformed command (no pattern) is silently skipped.
func (c *connection) handleSearch(lctx context.Context, line string) {
	if len(line) < 7 {
		return
	}
	rest := line[7:]
	i := strings.IndexByte(rest, ' ')
	if i < 0 {
		return
	}
	path := rest[:i]
	pattern := rest[i+1:]

	if c.list == nil {
		logger.ErrorCtx(lctx, "Search without file list", logger.KeyPath, path)
		c.send(protocol.NoMatchesReply)
		c.send(protocol.Terminator)
		return
	}

	if err := c.list.Reset(); err != nil {
		logger.WarnCtx(lctx, "Failed to reset file list", logger.KeyError, err.Error())
	}

	count, err := protocol.Walk(path, c, c.list)
	if err != nil {
		logger.ErrorCtx(lctx, "Traversal aborted", logger.KeyPath, path, logger.KeyError, err.Error())
		return
	}
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordFilesWalked(count)
	}

	if err := c.list.Sync(); err != nil {
		logger.WarnCtx(lctx, "Failed to sync file list", logger.KeyError, err.Error())
	}

	matches, err := protocol.Scan(c.list.Path(), pattern)
	if err != nil {
		logger.ErrorCtx(lctx, "Scan failed", logger.KeyPattern, pattern, logger.KeyError, err.Error())
	}

	if len(matches) == 0 {
		c.send(protocol.NoMatchesReply)
	} else {
		c.send(protocol.MatchedFilesHeader)
		for _, m := range matches {
			c.send(m + "\n")
		}
	}
	c.send(protocol.Terminator)

	logger.InfoCtx(lctx, "Search completed",
		logger.KeyPath, path,
		logger.KeyPattern, pattern,
		logger.KeyMatches, len(matches))
}

// handleInspect streams the raw contents of the requested file.
func (c *connection) handleInspect(lctx context.Context, path string) {
	n, err := protocol.StreamFile(path, c)
	if c.adapter.metrics != nil {
		c.adapter.metrics.RecordBytesStreamed(n)
	}
	if err != nil {
		logger.WarnCtx(lctx, "Inspect failed", logger.KeyPath, path, logger.KeyError, err.Error())
		return
	}
	logger.InfoCtx(lctx, "Inspect completed", logger.KeyPath, path, logger.KeyBytesStreamed, n)
}

// teardown releases everything the session holds.
func (c *connection) teardown() {
	if err := c.audit.Close(); err != nil {
		logger.Debug("Error closing session log", logger.KeySessionID, c.sessionID, logger.KeyError, err.Error())
	}
	if c.list != nil {
		if err := c.list.Remove(); err != nil {
			logger.Debug("Error removing file list", logger.KeySessionID, c.sessionID, logger.KeyError, err.Error())
		}
	}
	if err := c.conn.Close(); err != nil {
		logger.Debug("Error closing connection", logger.KeySessionID, c.sessionID, logger.KeyError, err.Error())
	}
}

// readLine performs a single read and strips trailing CR/LF. One read per
// credential or command keeps the wire exchange strictly lock-step.
func (c *connection) readLine() (string, error) {
	if t := c.adapter.config.Timeouts.Read; t > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(t)); err != nil {
			return "", err
		}
	}

	buf := make([]byte, readBufferSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", io.EOF
	}
	return strings.TrimRight(string(buf[:n]), "\r\n"), nil
}

// Write sends response bytes with the configured write deadline. connection
// implements io.Writer so the protocol operations can stream directly.
func (c *connection) Write(p []byte) (int, error) {
	if t := c.adapter.config.Timeouts.Write; t > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(t)); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(p)
}

func (c *connection) send(s string) error {
	_, err := io.WriteString(c, s)
	return err
}

// argAfter returns the command argument starting at byte offset off, the
// character after the mnemonic and its separating space.
func argAfter(line string, off int) string {
	if len(line) <= off {
		return ""
	}
	return line[off:]
}

// commandName maps a raw command line to its mnemonic for metrics and logs.
func commandName(line string) string {
	switch {
	case strings.HasPrefix(line, "TRAVERSE"):
		return "TRAVERSE"
	case strings.HasPrefix(line, "SEARCH"):
		return "SEARCH"
	case strings.HasPrefix(line, "INSPECT"):
		return "INSPECT"
	case strings.HasPrefix(line, "EXIT"):
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}
