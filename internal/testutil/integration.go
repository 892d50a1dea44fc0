//go:build integration

package testutil

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/kahiteam/ringbuf/internal/api"
	"github.com/kahiteam/ringbuf/internal/config"
	"github.com/kahiteam/ringbuf/internal/events"
	"github.com/kahiteam/ringbuf/internal/pipeline"
)

// IntegrationPipeline is a real pipeline served over a real Unix socket.
type IntegrationPipeline struct {
	Pipeline   *pipeline.Pipeline
	Server     *api.Server
	Bus        *events.Bus
	SocketPath string
	Dir        string
}

// StartIntegrationPipeline builds a pipeline from cfg, serves its API on a
// private Unix socket and registers cleanup for both. Frames are discarded;
// use the tail endpoint to observe them.
func StartIntegrationPipeline(t *testing.T, cfg *config.Config) *IntegrationPipeline {
	t.Helper()

	dir := TempDir(t)
	socketPath := dir + "/ringbuf-integration.sock"
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	bus := events.NewBus(logger)

	p, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Name:   "integration",
		Output: io.Discard,
		Bus:    bus,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("cannot build pipeline: %v", err)
	}

	srv := api.NewServer(api.Config{Metrics: p.Metrics().Handler()}, p, bus, logger)
	if err := srv.StartUnix(socketPath, 0700); err != nil {
		p.Close()
		t.Fatalf("cannot start integration server: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		_ = p.Close()
	})

	WaitFor(t, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second)

	return &IntegrationPipeline{
		Pipeline:   p,
		Server:     srv,
		Bus:        bus,
		SocketPath: socketPath,
		Dir:        dir,
	}
}
