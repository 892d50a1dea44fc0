//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/kahiteam/ringbuf/internal/pipeline"
	"github.com/kahiteam/ringbuf/internal/testutil"
)

func TestDaemon_HealthAndVersion(t *testing.T) {
	d, _ := liveDaemon(t, "")

	if h, err := d.Client.Health(); err != nil || h != "ok" {
		t.Fatalf("health = %q, %v", h, err)
	}
	v, err := d.Client.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, key := range []string{"version", "commit", "date", "go_version", "platform"} {
		if _, ok := v[key]; !ok {
			t.Errorf("version map missing key %q", key)
		}
	}
}

func TestDaemon_ReadyWhileSourceOpen(t *testing.T) {
	d, w := liveDaemon(t, "")

	if r, err := d.Client.Ready(); err != nil || r != "ready" {
		t.Fatalf("ready = %q, %v", r, err)
	}
	w.Close()
	waitForStatus(t, d, func(st pipeline.Status) bool { return !st.Running })
	if r, _ := d.Client.Ready(); r != "not_ready" {
		t.Fatalf("ready after EOF = %q, want not_ready", r)
	}
}

func TestDaemon_FramesReachOutput(t *testing.T) {
	d, w := liveDaemon(t, "")

	send(t, w, "temp=21.5\nhum=40\n")
	waitForStatus(t, d, func(st pipeline.Status) bool { return st.Stats.Frames == 2 })

	if got := readOutput(t, d); got != "temp=21.5\nhum=40\n" {
		t.Fatalf("output = %q", got)
	}

	var tail bytes.Buffer
	if err := d.Client.Tail(9, &tail); err != nil {
		t.Fatal(err)
	}
	if tail.String() != "5\nhum=40\n" {
		t.Fatalf("tail = %q", tail.String())
	}
}

func TestDaemon_InspectHeldBytes(t *testing.T) {
	d, w := liveDaemon(t, `
[buffer]
capacity = "64"
`)

	send(t, w, "id\x00partial,record")
	st := waitForStatus(t, d, func(st pipeline.Status) bool { return st.Buffer.Used == 17 })
	if st.Stats.Frames != 0 {
		t.Fatalf("frames = %d, want 0 before a delimiter", st.Stats.Frames)
	}

	if n, err := d.Client.RunLength(0); err != nil || n != 2 {
		t.Fatalf("run length = %d, %v; want 2", n, err)
	}
	if i, err := d.Client.FindByte(0, ','); err != nil || i != 10 {
		t.Fatalf("find ',' = %d, %v; want 10", i, err)
	}
	if i, err := d.Client.FindPattern(0, []byte("record")); err != nil || i != 11 {
		t.Fatalf("find record = %d, %v; want 11", i, err)
	}
	data, err := d.Client.Peek(3, 7)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "partial" {
		t.Fatalf("peek = %q", data)
	}

	send(t, w, "\n")
	waitForStatus(t, d, func(st pipeline.Status) bool { return st.Buffer.Used == 0 && st.Stats.Frames == 1 })
}

func TestDaemon_WriteModeDropsOverflow(t *testing.T) {
	d, w := liveDaemon(t, `
[buffer]
capacity = "8"

[source]
chunk_size = "32"
`)

	// A full ring with no delimiter is emitted whole as an oversize frame.
	send(t, w, "0123456789AB")
	st := waitForStatus(t, d, func(st pipeline.Status) bool { return st.Stats.BytesIn == 12 && st.Stats.Frames == 1 })
	if st.Stats.Dropped != 4 || st.Stats.Oversize != 1 {
		t.Fatalf("stats = %+v, want 4 dropped and 1 oversize frame", st.Stats)
	}
	if got := readOutput(t, d); got != "01234567\n" {
		t.Fatalf("output = %q, want the oldest bytes", got)
	}
}

func TestDaemon_OverwriteModeKeepsNewest(t *testing.T) {
	d, w := liveDaemon(t, `
[buffer]
capacity = "8"
mode = "overwrite"

[source]
chunk_size = "32"
`)

	send(t, w, "0123456789AB")
	st := waitForStatus(t, d, func(st pipeline.Status) bool { return st.Stats.BytesIn == 12 && st.Stats.Frames == 1 })
	if st.Stats.Overwritten != 4 {
		t.Fatalf("overwritten = %d, want 4", st.Stats.Overwritten)
	}
	if got := readOutput(t, d); got != "456789AB\n" {
		t.Fatalf("output = %q, want the newest bytes", got)
	}
}

func TestDaemon_EventStream(t *testing.T) {
	d, w := liveDaemon(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- d.Client.Events(ctx, []string{"FRAME_RECEIVED"}, &out) }()

	testutil.WaitFor(t, func() bool {
		send(t, w, "ping\n")
		return strings.Contains(out.String(), "FRAME_RECEIVED")
	}, 4*time.Second)
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"length":"4"`) {
		t.Fatalf("events = %q", out.String())
	}
}

func TestDaemon_ShutdownViaCtl(t *testing.T) {
	d, _ := liveDaemon(t, "")

	if err := d.Client.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := d.Wait(t, 5*time.Second); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if _, err := os.Stat(d.Workspace.SocketPath); !os.IsNotExist(err) {
		t.Error("socket should be removed on exit")
	}
}

func TestDaemon_SIGTERMFlushesPartial(t *testing.T) {
	d, w := liveDaemon(t, "")

	send(t, w, "complete\nunterminated")
	waitForStatus(t, d, func(st pipeline.Status) bool { return st.Stats.BytesIn == 21 })

	d.Signal(t, syscall.SIGTERM)
	if err := d.Wait(t, 5*time.Second); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if got := readOutput(t, d); got != "complete\nunterminated\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestDaemon_SIGUSR2ReopensOutput(t *testing.T) {
	d, w := liveDaemon(t, "")

	send(t, w, "before\n")
	waitForStatus(t, d, func(st pipeline.Status) bool { return st.Stats.Frames == 1 })

	rotated := d.Workspace.OutputPath + ".1"
	if err := os.Rename(d.Workspace.OutputPath, rotated); err != nil {
		t.Fatal(err)
	}
	d.Signal(t, syscall.SIGUSR2)
	testutil.WaitFor(t, func() bool {
		_, err := os.Stat(d.Workspace.OutputPath)
		return err == nil
	}, 5*time.Second)

	send(t, w, "after\n")
	waitForStatus(t, d, func(st pipeline.Status) bool { return st.Stats.Frames == 2 })

	old, err := os.ReadFile(rotated)
	if err != nil {
		t.Fatal(err)
	}
	if string(old) != "before\n" {
		t.Fatalf("rotated = %q", old)
	}
	if got := readOutput(t, d); got != "after\n" {
		t.Fatalf("reopened output = %q", got)
	}
}

func TestDaemon_ExitsAtEOFWithoutHold(t *testing.T) {
	dir := testutil.TempDir(t)
	src := testutil.WriteFile(t, dir, "input.txt", "a\nb\n")
	ws := testutil.NewWorkspace(t, src, "")

	d := testutil.StartE2EDaemon(t, ringbufBinary, ws)
	if err := d.Wait(t, 10*time.Second); err != nil {
		t.Fatalf("exit: %v", err)
	}
	data, err := os.ReadFile(ws.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Fatalf("output = %q", data)
	}
}
