package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kahiteam/ringbuf/internal/api"
	"github.com/kahiteam/ringbuf/internal/config"
	"github.com/kahiteam/ringbuf/internal/events"
	"github.com/kahiteam/ringbuf/internal/logging"
	"github.com/kahiteam/ringbuf/internal/pipeline"
	"github.com/kahiteam/ringbuf/internal/source"
	"github.com/kahiteam/ringbuf/internal/version"
	"github.com/kahiteam/ringbuf/internal/web"
)

const shutdownTimeout = 5 * time.Second

var (
	runConfig string
	runSource string
	runName   string
	runHold   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stage a byte source through the ring buffer and emit frames",
	Long: "Reads the configured source in chunks, stages it in the ring buffer and writes frames " +
		"until the source ends or a signal arrives. SIGUSR2 reopens the output file.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Resolve(runConfig)
		if err != nil {
			return err
		}
		cfg, warnings, err := config.Load(path)
		if err != nil {
			return err
		}
		if runSource != "" {
			cfg.Source.Path = runSource
		}

		logger, cleanup, err := logging.DaemonLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}
		for _, w := range warnings {
			logger.Warn(w, "config", path)
		}
		logger.Info("config loaded", "path", path)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, serveOptions{
			name:   runName,
			hold:   runHold,
			output: cmd.OutOrStdout(),
			logger: logger,
		})
	},
}

type serveOptions struct {
	name   string
	hold   bool
	output io.Writer
	logger *slog.Logger
}

// serve runs one pipeline and its inspection API until the source ends
// (or, with hold, until ctx is done) and then shuts everything down.
func serve(ctx context.Context, cfg *config.Config, opts serveOptions) (err error) {
	logger := opts.logger
	bus := events.NewBus(logger)

	p, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Name:   opts.name,
		Output: opts.output,
		Bus:    bus,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	p.Metrics().SetBuildInfo(version.Version, version.Go())

	var dash *web.Handler
	if cfg.Server.Dashboard.Enabled {
		if dash, err = web.NewHandler(p, web.Config{StaticDir: cfg.Server.Dashboard.StaticDir}, logger); err != nil {
			p.Close()
			return err
		}
	}

	src, err := source.Open(cfg.Source.Path)
	if err != nil {
		p.Close()
		return err
	}

	ticker := events.NewTicker(bus)
	webhooks := events.NewWebhookManager(bus, opts.name, webhookConfigs(cfg.Webhooks), logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiCfg := api.Config{
		Username: cfg.Server.HTTP.Username,
		Password: cfg.Server.HTTP.Password,
		Metrics:  p.Metrics().Handler(),
		Shutdown: cancel,
	}
	if dash != nil {
		apiCfg.Dashboard = dash
	}
	srv := api.NewServer(apiCfg, p, bus, logger)

	defer func() {
		var result *multierror.Error
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if serr := srv.Stop(stopCtx); serr != nil {
			result = multierror.Append(result, fmt.Errorf("stop api: %w", serr))
		}
		webhooks.Stop()
		ticker.Stop()
		if cerr := src.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("close source: %w", cerr))
		}
		if cerr := p.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if err == nil {
			err = result.ErrorOrNil()
		}
		logger.Info("ringbuf stopped")
	}()

	if err := startServers(srv, cfg.Server); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := p.Run(gctx, source.Throttle(gctx, src, cfg.Source.Baud))
		if err != nil || !opts.hold {
			cancel()
			return err
		}
		logger.Info("source drained, holding for inspection")
		<-gctx.Done()
		return nil
	})
	g.Go(func() error {
		reopenOnSignal(gctx, p, logger)
		return nil
	})
	return g.Wait()
}

func startServers(srv *api.Server, cfg config.ServerConfig) error {
	if cfg.Unix.File != "" {
		mode, err := strconv.ParseUint(cfg.Unix.Chmod, 8, 32)
		if err != nil {
			return fmt.Errorf("invalid server.unix.chmod %q: %w", cfg.Unix.Chmod, err)
		}
		if err := srv.StartUnix(cfg.Unix.File, os.FileMode(mode)); err != nil {
			return err
		}
	}
	if cfg.HTTP.Enabled {
		if err := srv.StartTCP(cfg.HTTP.Listen); err != nil {
			return err
		}
	}
	return nil
}

func reopenOnSignal(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if err := p.Reopen(); err != nil {
				logger.Error("cannot reopen output", "error", err)
				continue
			}
			logger.Info("output reopened")
		}
	}
}

// webhookConfigs converts validated config entries in name order.
func webhookConfigs(hooks map[string]config.WebhookConfig) []events.WebhookConfig {
	var out []events.WebhookConfig
	for _, name := range slices.Sorted(maps.Keys(hooks)) {
		wh := hooks[name]
		var types []events.EventType
		for _, e := range wh.Events {
			if et, err := events.ParseEventType(e); err == nil {
				types = append(types, et)
			}
		}
		out = append(out, events.WebhookConfig{
			Name:          name,
			URL:           wh.URL,
			Events:        types,
			Headers:       wh.Headers,
			Timeout:       time.Duration(wh.Timeout) * time.Second,
			MaxRetries:    wh.Retries,
			MinInterval:   time.Duration(wh.MinInterval) * time.Second,
			Template:      wh.Template,
			AllowInsecure: wh.AllowInsecure,
		})
	}
	return out
}

var errNoPipelineName = errors.New("--name must not be empty")

func init() {
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "", "config file path (default: search ./ringbuf.toml, /etc/ringbuf/ringbuf.toml)")
	runCmd.Flags().StringVar(&runSource, "source", "", "override source.path (\"-\" for stdin)")
	runCmd.Flags().StringVar(&runName, "name", "ringbuf", "pipeline name used in events, metrics and JSON output")
	runCmd.Flags().BoolVar(&runHold, "hold", false, "keep serving the API after the source ends until a signal or shutdown request")
	runCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if runName == "" {
			return errNoPipelineName
		}
		return nil
	}
	rootCmd.AddCommand(runCmd)
}
