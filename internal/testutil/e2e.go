//go:build e2e

package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/kahiteam/ringbuf/internal/ctl"
)

// DefaultE2ETimeout is the maximum time an E2E daemon may run.
const DefaultE2ETimeout = 30 * time.Second

// BuildBinary compiles the ringbuf command into dir and returns its path.
func BuildBinary(dir string) (string, error) {
	binary := filepath.Join(dir, "ringbuf")
	cmd := exec.Command("go", "build", "-race", "-o", binary, "github.com/kahiteam/ringbuf/cmd/ringbuf")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("build ringbuf: %w", err)
	}
	return binary, nil
}

// NewFIFO creates a named pipe in dir for use as a live source.
func NewFIFO(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "source.fifo")
	if err := syscall.Mkfifo(path, 0600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	return path
}

// OpenFIFOWriter opens the write end of a named pipe. It blocks until the
// daemon opens the read end.
func OpenFIFOWriter(t *testing.T, path string) *os.File {
	t.Helper()
	opened := make(chan *os.File, 1)
	errc := make(chan error, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			errc <- err
			return
		}
		opened <- f
	}()
	select {
	case f := <-opened:
		t.Cleanup(func() { f.Close() })
		return f
	case err := <-errc:
		t.Fatalf("open fifo: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the daemon to open the source")
	}
	return nil
}

// E2EDaemon is a running "ringbuf run" process.
type E2EDaemon struct {
	Cmd       *exec.Cmd
	Workspace *Workspace
	Client    *ctl.Client
	done      chan error
}

// StartE2EDaemon starts binary on the workspace config with extra run
// arguments. It does not wait for the API; call WaitHealthy once the
// source is connected.
func StartE2EDaemon(t *testing.T, binary string, ws *Workspace, args ...string) *E2EDaemon {
	t.Helper()

	cmd := exec.Command(binary, append([]string{"run", "-c", ws.ConfigPath}, args...)...)
	cmd.Dir = ws.Dir
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("cannot start e2e daemon: %v", err)
	}

	d := &E2EDaemon{
		Cmd:       cmd,
		Workspace: ws,
		Client:    ctl.NewUnixClient(ws.SocketPath),
		done:      make(chan error, 1),
	}
	go func() { d.done <- cmd.Wait() }()

	t.Cleanup(func() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-d.done:
		case <-time.After(5 * time.Second):
			_ = cmd.Process.Kill()
			<-d.done
		}
	})
	return d
}

// WaitHealthy polls the health endpoint until it answers ok.
func (d *E2EDaemon) WaitHealthy(t *testing.T) {
	t.Helper()
	WaitFor(t, func() bool {
		h, err := d.Client.Health()
		return err == nil && h == "ok"
	}, 5*time.Second)
}

// Signal sends sig to the daemon process.
func (d *E2EDaemon) Signal(t *testing.T, sig os.Signal) {
	t.Helper()
	if err := d.Cmd.Process.Signal(sig); err != nil {
		t.Fatalf("signal daemon: %v", err)
	}
}

// Wait returns the process exit error, failing the test after timeout.
func (d *E2EDaemon) Wait(t *testing.T, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-d.done:
		d.done <- err
		return err
	case <-time.After(timeout):
		t.Fatal("timeout waiting for daemon to exit")
	}
	return nil
}
