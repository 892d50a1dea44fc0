// Package testutil provides shared test helpers for the ringbuf test suite.
package testutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kahiteam/ringbuf/internal/config"
)

// TempDir creates a temporary directory for testing and registers cleanup.
// Unix socket paths are length limited, so the directory lives under the
// system temp dir rather than t.TempDir.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ringbuf-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// FreeSocket returns a unique Unix socket path in a temporary directory.
// The socket file does not exist yet; it is created by the server.
func FreeSocket(t *testing.T) string {
	t.Helper()
	dir := TempDir(t)
	return filepath.Join(dir, "ringbuf.sock")
}

// FreeTCPPort returns an available TCP port by binding to :0 and releasing.
func FreeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// MustParseConfig parses a TOML string into a Config struct, failing the
// test on error.
func MustParseConfig(t *testing.T, toml string) *config.Config {
	t.Helper()
	cfg, warnings, err := config.LoadBytes([]byte(toml), "test.toml")
	if err != nil {
		t.Fatalf("MustParseConfig: %v", err)
	}
	for _, w := range warnings {
		t.Logf("config warning: %s", w)
	}
	return cfg
}

// WaitFor polls a condition function until it returns true or the timeout
// expires, failing the test on timeout.
func WaitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	interval := 50 * time.Millisecond

	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}
	t.Fatal("WaitFor: condition not met within timeout")
}

// WriteFile writes content to a file in the given directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("cannot write %s: %v", path, err)
	}
	return path
}

// Workspace is an isolated directory holding a ringbuf config, its socket
// path and an output file.
type Workspace struct {
	Dir        string
	SocketPath string
	OutputPath string
	ConfigPath string
}

// NewWorkspace writes a config that reads source and serves the API on a
// private socket. extra is appended verbatim and may add further tables.
func NewWorkspace(t *testing.T, source, extra string) *Workspace {
	t.Helper()
	dir := TempDir(t)
	ws := &Workspace{
		Dir:        dir,
		SocketPath: filepath.Join(dir, "ringbuf.sock"),
		OutputPath: filepath.Join(dir, "frames.log"),
	}

	toml := fmt.Sprintf(`
[log]
level = "debug"
format = "text"

[source]
path = %q

[output]
file = %q

[server.unix]
file = %q

%s
`, source, ws.OutputPath, ws.SocketPath, extra)

	ws.ConfigPath = WriteFile(t, dir, "ringbuf.toml", toml)
	return ws
}
