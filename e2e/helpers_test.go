//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kahiteam/ringbuf/internal/pipeline"
	"github.com/kahiteam/ringbuf/internal/testutil"
)

// ringbufBinary is the path to the built ringbuf binary, set by TestMain.
var ringbufBinary string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "ringbuf-e2e-bin-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	ringbufBinary, err = testutil.BuildBinary(tmpDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	// Suite-wide timeout fallback.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	go func() {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			fmt.Fprintln(os.Stderr, "E2E suite timeout exceeded (10 minutes)")
			os.Exit(2)
		}
	}()

	code := m.Run()
	cancel()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// liveDaemon starts "ringbuf run --hold" reading from a FIFO and returns the
// daemon plus the FIFO's write end.
func liveDaemon(t *testing.T, extraTOML string, args ...string) (*testutil.E2EDaemon, *os.File) {
	t.Helper()
	dir := testutil.TempDir(t)
	fifo := testutil.NewFIFO(t, dir)
	ws := testutil.NewWorkspace(t, fifo, extraTOML)

	d := testutil.StartE2EDaemon(t, ringbufBinary, ws, append([]string{"--hold"}, args...)...)
	w := testutil.OpenFIFOWriter(t, fifo)
	d.WaitHealthy(t)
	return d, w
}

func send(t *testing.T, w *os.File, s string) {
	t.Helper()
	if _, err := w.WriteString(s); err != nil {
		t.Fatalf("write source: %v", err)
	}
}

// waitForStatus polls the buffer status until cond holds.
func waitForStatus(t *testing.T, d *testutil.E2EDaemon, cond func(pipeline.Status) bool) pipeline.Status {
	t.Helper()
	var last pipeline.Status
	testutil.WaitFor(t, func() bool {
		st, err := d.Client.BufferStatus()
		if err != nil {
			return false
		}
		last = st
		return cond(st)
	}, 5*time.Second)
	return last
}

func readOutput(t *testing.T, d *testutil.E2EDaemon) string {
	t.Helper()
	data, err := os.ReadFile(d.Workspace.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
