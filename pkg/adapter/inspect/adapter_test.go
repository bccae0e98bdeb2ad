package inspect

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/inspectd/internal/logger"
	"github.com/marmos91/inspectd/pkg/auth"
	"github.com/marmos91/inspectd/pkg/client"
)

const testTimeout = 5 * time.Second

// testServer bundles a running adapter with its backing directories.
type testServer struct {
	adapter    *Adapter
	addr       string
	logDir     string
	scratchDir string
	cancel     context.CancelFunc
	served     chan error
}

func startTestServer(t *testing.T, cfg InspectConfig) *testServer {
	t.Helper()

	logger.InitWithWriter(io.Discard, "ERROR", "text", false)

	tmpDir := t.TempDir()
	logDir := filepath.Join(tmpDir, "logs")
	scratchDir := filepath.Join(tmpDir, "scratch")
	require.NoError(t, os.MkdirAll(scratchDir, 0755))

	backend := Backend{
		Store:      auth.NewCredentialStore(filepath.Join(tmpDir, "users.txt")),
		LogDir:     logDir,
		ScratchDir: scratchDir,
	}

	// Port 0: the kernel picks a free port
	adapter := New(cfg, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- adapter.Serve(ctx)
	}()

	ts := &testServer{
		adapter:    adapter,
		addr:       adapter.GetListenerAddr(),
		logDir:     logDir,
		scratchDir: scratchDir,
		cancel:     cancel,
		served:     served,
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-served:
		case <-time.After(testTimeout):
			t.Error("Server did not shut down in time")
		}
	})

	return ts
}

func (ts *testServer) dial(t *testing.T) *client.Client {
	t.Helper()

	c, err := client.Dial(ts.addr, testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

// buildTestTree creates a small fixture hierarchy and returns its root.
func buildTestTree(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("world"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "c.txt"), []byte("hello world"), 0644))

	return root
}

func TestServer_Registration(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})
	c := ts.dial(t)

	reply, err := c.Login("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Account created", reply)

	require.NoError(t, c.Exit())
}

func TestServer_LoginAfterRegistration(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	c1 := ts.dial(t)
	reply, err := c1.Login("alice", "secret")
	require.NoError(t, err)
	require.Equal(t, "Account created", reply)
	require.NoError(t, c1.Exit())

	c2 := ts.dial(t)
	reply, err = c2.Login("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Login successful", reply)
	require.NoError(t, c2.Exit())
}

func TestServer_WrongPassword(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	c1 := ts.dial(t)
	_, err := c1.Login("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, c1.Exit())

	c2 := ts.dial(t)
	reply, err := c2.Login("alice", "wrong")
	require.NoError(t, err)
	assert.Equal(t, "Incorrect password", reply)

	// The session is closed after a failed login
	_, err = c2.Traverse("/tmp")
	assert.Error(t, err)
}

func TestServer_Traverse(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})
	root := buildTestTree(t)

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)

	out, err := c.Traverse(root)
	require.NoError(t, err)

	expected := fmt.Sprintf(
		"Directory: %s\nFile: %s\nFile: %s\nDirectory: %s\nFile: %s\n\nTotal Files: 3\n",
		root,
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "b.txt"),
		filepath.Join(root, "sub"),
		filepath.Join(root, "sub", "c.txt"))
	assert.Equal(t, expected, out)

	require.NoError(t, c.Exit())
}

func TestServer_TraverseMissingRoot(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "nope")
	out, err := c.Traverse(missing)
	require.NoError(t, err)

	assert.Contains(t, out, "ERROR: Cannot open directory: "+missing)
	assert.Contains(t, out, "Total Files: 0")
}

func TestServer_SearchMatches(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})
	root := buildTestTree(t)

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)

	out, err := c.Search(root, "hello")
	require.NoError(t, err)

	// The walk output precedes the match section
	assert.Contains(t, out, "Directory: "+root)
	idx := strings.Index(out, "\nMatched Files:\n")
	require.GreaterOrEqual(t, idx, 0, "expected match section, got: %q", out)

	matches := strings.TrimSuffix(out[idx+len("\nMatched Files:\n"):], "\n")
	assert.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "c.txt"),
	}, strings.Split(matches, "\n"))
}

func TestServer_SearchNoMatches(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})
	root := buildTestTree(t)

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)

	out, err := c.Search(root, "xyzzy")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\nNo matches found\n"), "got: %q", out)
}

func TestServer_Inspect(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	content := []byte("line one\nline two\x00binary tail")
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)

	got, err := c.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestServer_InspectMissingFile(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)

	got, err := c.Inspect(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ERROR: Cannot open file\n", string(got))
}

func TestServer_UnknownCommand(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)

	out, err := c.Raw("FROBNICATE /tmp")
	require.NoError(t, err)
	assert.Equal(t, "ERROR: Unknown command\n", out)

	// The session survives an unknown command
	out, err = c.Raw("BOGUS")
	require.NoError(t, err)
	assert.Equal(t, "ERROR: Unknown command\n", out)
}

func TestServer_SessionLogWritten(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})
	root := buildTestTree(t)

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)
	_, err = c.Traverse(root)
	require.NoError(t, err)
	require.NoError(t, c.Exit())

	// Wait for the session goroutine to finish teardown
	waitForDrain(t, ts.adapter)

	logs, err := filepath.Glob(filepath.Join(ts.logDir, "alice_*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)

	data, err := os.ReadFile(logs[0])
	require.NoError(t, err)

	expected := "New user registered securely\n" +
		"Command: TRAVERSE " + root + "\n" +
		"Command: EXIT\n" +
		"Session ended\n"
	assert.Equal(t, expected, string(data))
}

func TestServer_ScratchFilesRemoved(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})
	root := buildTestTree(t)

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)
	_, err = c.Traverse(root)
	require.NoError(t, err)
	require.NoError(t, c.Exit())

	waitForDrain(t, ts.adapter)

	leftovers, err := filepath.Glob(filepath.Join(ts.scratchDir, "files_*.txt"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestServer_ConcurrentSessions(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})
	root := buildTestTree(t)

	const sessions = 8

	var wg sync.WaitGroup
	errs := make(chan error, sessions)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			c, err := client.Dial(ts.addr, testTimeout)
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()

			if _, err := c.Login(fmt.Sprintf("user%d", id), "pw"); err != nil {
				errs <- err
				return
			}

			out, err := c.Traverse(root)
			if err != nil {
				errs <- err
				return
			}
			if !strings.Contains(out, "Total Files: 3") {
				errs <- fmt.Errorf("session %d: unexpected traverse output: %q", id, out)
				return
			}

			errs <- c.Exit()
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_MaxConnectionsLimit(t *testing.T) {
	ts := startTestServer(t, InspectConfig{MaxConnections: 1})

	c1 := ts.dial(t)
	_, err := c1.Login("alice", "secret")
	require.NoError(t, err)

	// Second connection is held at the semaphore until the first closes
	dialed := make(chan *client.Client, 1)
	go func() {
		c2, err := client.Dial(ts.addr, testTimeout)
		if err != nil {
			dialed <- nil
			return
		}
		if _, err := c2.Login("bob", "pw"); err != nil {
			c2.Close()
			dialed <- nil
			return
		}
		dialed <- c2
	}()

	// The connection should not complete its handshake while the slot is held
	select {
	case <-dialed:
		t.Fatal("Second session completed while connection limit was held")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, c1.Exit())
	c1.Close()

	select {
	case c2 := <-dialed:
		require.NotNil(t, c2)
		require.NoError(t, c2.Exit())
		c2.Close()
	case <-time.After(testTimeout):
		t.Fatal("Second session never admitted after slot freed")
	}
}

func TestServer_GracefulShutdownDrains(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	c := ts.dial(t)
	_, err := c.Login("alice", "secret")
	require.NoError(t, err)
	require.NoError(t, c.Exit())

	waitForDrain(t, ts.adapter)

	ts.cancel()
	select {
	case err := <-ts.served:
		assert.NoError(t, err)
		// Repost for the cleanup registered by startTestServer
		ts.served <- err
	case <-time.After(testTimeout):
		t.Fatal("Serve did not return after shutdown")
	}
}

func TestServer_GetListenerAddr(t *testing.T) {
	ts := startTestServer(t, InspectConfig{})

	assert.NotEmpty(t, ts.addr)
	assert.NotEqual(t, ":0", ts.addr)
}

func TestNew_InvalidConfigPanics(t *testing.T) {
	assert.Panics(t, func() {
		New(InspectConfig{Port: -1}, Backend{}, nil)
	})
}

// waitForDrain polls until all session goroutines have finished.
func waitForDrain(t *testing.T, a *Adapter) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for a.GetActiveConnections() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Sessions never drained: %d active", a.GetActiveConnections())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
