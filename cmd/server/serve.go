package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aircrashes/internal/api"
	"aircrashes/internal/engine"
	"aircrashes/internal/metrics"
	"aircrashes/internal/watch"
)

const (
	shutdownTimeout = 10 * time.Second
	watchDebounce   = 500 * time.Millisecond
)

var (
	flagListen string
	flagWatch  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("listen") {
			cfg.ListenAddr = flagListen
		}
		if cmd.Flags().Changed("watch") {
			cfg.Watch = flagWatch
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&flagWatch, "watch", false, "reload the dataset when the CSV changes")
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := cfg.Source()
	if err != nil {
		return err
	}

	// 1. Metrics and cache
	var cacheOpts []engine.CacheOption
	var m *metrics.Metrics
	if cfg.Metrics {
		if m, err = metrics.New(); err != nil {
			return err
		}
		cacheOpts = append(cacheOpts, engine.WithObserver(m))
	}
	cache := engine.NewCache(cacheOpts...)

	// 2. Handler starts with no data; requests get 503 until the load finishes
	h := api.NewHandler(nil, handlerOptions())
	e := api.NewServer(h, api.ServerOptions{Logger: slog.Default(), Metrics: m})

	// 3. Load in the background
	loadErr := make(chan error, 1)
	go func() {
		slog.Info("background: loading dataset", "path", src.Path, "encoding", string(src.Encoding))
		t0 := time.Now()

		ds, err := cache.Dataset(ctx, src)
		if err != nil {
			loadErr <- err
			return
		}
		h.SetData(ds)
		slog.Info("background: dataset ready", "rows", ds.Len(), "elapsed", time.Since(t0))

		if cfg.Watch {
			r := &watch.Reloader{Cache: cache, Source: src, Publish: h.SetData}
			if err := r.Run(ctx, watchDebounce); err != nil {
				slog.Error("file watcher stopped", "error", err)
			}
		}
	}()

	// 4. Start server immediately
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server ready (data loading in background)", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-loadErr:
		slog.Error("dataset load failed", "error", err)
		runErr = fmt.Errorf("load dataset: %w", err)
	case err := <-serverErr:
		runErr = err
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// handlerOptions turns the config and the root filter flags into the API
// defaults used when a request leaves them out.
func handlerOptions() api.Options {
	opts := api.Options{
		DefaultYearMin:   cfg.DefaultYearMin,
		DefaultYearMax:   cfg.DefaultYearMax,
		DefaultCountries: flagCountries,
		Dashboard:        cfg.DashboardOptions(),
	}
	f := rootCmd.PersistentFlags()
	if f.Changed("year-min") {
		opts.DefaultYearMin = flagYearMin
	}
	if f.Changed("year-max") {
		opts.DefaultYearMax = flagYearMax
	}
	return opts
}
