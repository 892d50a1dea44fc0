package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.bin")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	rc, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("read %q", data)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open("/nonexistent/tty")
	if err == nil || !strings.Contains(err.Error(), "cannot open source") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenStdin(t *testing.T) {
	rc, err := Open(Stdin)
	if err != nil {
		t.Fatal(err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("closing stdin wrapper: %v", err)
	}
}

func TestBytesPerSecond(t *testing.T) {
	if got := BytesPerSecond(9600); got != 960 {
		t.Fatalf("9600 baud = %d B/s, want 960", got)
	}
	if got := BytesPerSecond(0); got != 0 {
		t.Fatalf("0 baud = %d", got)
	}
}

func TestThrottleDisabled(t *testing.T) {
	r := strings.NewReader("abc")
	if Throttle(context.Background(), r, 0) != io.Reader(r) {
		t.Fatal("baud 0 should return the reader unchanged")
	}
}

func TestThrottlePaces(t *testing.T) {
	// 1000 baud is 100 B/s with a burst of 10 bytes.
	data := bytes.Repeat([]byte("x"), 30)
	r := Throttle(context.Background(), bytes.NewReader(data), 1000)

	start := time.Now()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	if !bytes.Equal(got, data) {
		t.Fatal("throttled reader altered the data")
	}
	// The first burst is free; the remaining 20 bytes need ~200ms.
	if elapsed < 150*time.Millisecond {
		t.Fatalf("read 30 bytes in %v, expected pacing", elapsed)
	}
}

func TestThrottleChunksReads(t *testing.T) {
	r := Throttle(context.Background(), bytes.NewReader(make([]byte, 100)), 1000)
	n, err := r.Read(make([]byte, 100))
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("read %d bytes, want one burst of 10", n)
	}
}

func TestThrottleCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Throttle(ctx, bytes.NewReader(make([]byte, 100)), 10) // 1 B/s

	if _, err := r.Read(make([]byte, 1)); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := r.Read(make([]byte, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
