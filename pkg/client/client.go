// Package client implements a Go client for the inspection protocol.
//
// It drives the lock-step wire exchange: answer the two login prompts, then
// issue commands and collect framed responses terminated by the end marker.
package client

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	protocol "github.com/marmos91/inspectd/internal/protocol/inspect"
)

// Client is a single protocol session over TCP. It is not safe for
// concurrent use: the protocol itself is strictly request/response.
type Client struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// Dial connects to an inspection server.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %q: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		r:       bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// Login answers the username and password prompts and returns the server's
// verdict line (e.g. "Login successful"). A rejected login leaves the
// connection closed on the server side.
func (c *Client) Login(username, password string) (string, error) {
	if err := c.readPrompt(); err != nil {
		return "", fmt.Errorf("waiting for username prompt: %w", err)
	}
	if err := c.writeLine(username); err != nil {
		return "", err
	}

	if err := c.readPrompt(); err != nil {
		return "", fmt.Errorf("waiting for password prompt: %w", err)
	}
	if err := c.writeLine(password); err != nil {
		return "", err
	}

	c.deadline()
	reply, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading login reply: %w", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// Traverse requests a recursive directory walk and returns the framed
// response body with the terminator stripped.
func (c *Client) Traverse(path string) (string, error) {
	if err := c.writeLine("TRAVERSE " + path); err != nil {
		return "", err
	}
	body, err := c.readFrame()
	return string(body), err
}

// Search requests a content search and returns the framed response body
// with the terminator stripped.
func (c *Client) Search(path, pattern string) (string, error) {
	if err := c.writeLine("SEARCH " + path + " " + pattern); err != nil {
		return "", err
	}
	body, err := c.readFrame()
	return string(body), err
}

// Inspect requests the raw contents of a file. The returned bytes are
// exactly what the server streamed before the terminator.
func (c *Client) Inspect(path string) ([]byte, error) {
	if err := c.writeLine("INSPECT " + path); err != nil {
		return nil, err
	}
	return c.readFrame()
}

// Raw sends an arbitrary command line and returns the framed response.
// Useful for probing server behavior with malformed input.
func (c *Client) Raw(line string) (string, error) {
	if err := c.writeLine(line); err != nil {
		return "", err
	}
	body, err := c.readFrame()
	return string(body), err
}

// Exit ends the session politely. The server closes the connection without
// a reply.
func (c *Client) Exit() error {
	return c.writeLine("EXIT")
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// readPrompt consumes bytes until a ": " prompt suffix arrives. Prompts are
// not newline-terminated, so line reads would block forever.
func (c *Client) readPrompt() error {
	c.deadline()
	var got []byte
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return err
		}
		got = append(got, b)
		if bytes.HasSuffix(got, []byte(": ")) {
			return nil
		}
	}
}

// readFrame accumulates response bytes until the end marker and returns the
// body with the marker stripped. A connection closed before the marker
// arrives is reported as an error: that is how truncated streams surface.
func (c *Client) readFrame() ([]byte, error) {
	c.deadline()
	term := []byte(protocol.Terminator)

	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, err := c.r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if bytes.HasSuffix(buf.Bytes(), term) {
				body := buf.Bytes()
				return body[:len(body)-len(term)], nil
			}
		}
		if err != nil {
			return buf.Bytes(), fmt.Errorf("response ended without terminator: %w", err)
		}
	}
}

func (c *Client) writeLine(line string) error {
	c.deadline()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to send %q: %w", line, err)
	}
	return nil
}

// deadline refreshes the I/O deadline before each exchange.
func (c *Client) deadline() {
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}
