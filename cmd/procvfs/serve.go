package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/procvfs/pkg/config"
	"github.com/platinummonkey/procvfs/pkg/httputil"
	"github.com/platinummonkey/procvfs/pkg/observability"
	"github.com/platinummonkey/procvfs/pkg/plugins"
	"github.com/platinummonkey/procvfs/pkg/vfs"
)

func newServeCmd(a *app) *cobra.Command {
	var refreshEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the virtual file system over HTTP",
		Long: `Serve the virtual file system over HTTP until interrupted.

Changes to log.level in the config file are applied while running and
announced to every module as a verbosity change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), refreshEvery)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:7070)")
	cmd.Flags().DurationVar(&refreshEvery, "refresh-interval", 0,
		"refresh process state periodically, announcing created and terminated processes (0 disables)")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func (a *app) serve(ctx context.Context, refreshEvery time.Duration) error {
	cfg := a.cfg
	log := a.log

	providers, err := observability.InitOTel(ctx, cfg.OTel, cfg.System, log)
	if err != nil {
		return fmt.Errorf("initializing OpenTelemetry: %w", err)
	}

	var (
		stats    []plugins.Statistics
		metrics  *observability.Metrics
		promRegs = prometheus.NewRegistry()
	)
	if cfg.Metrics.Enabled {
		promRegs.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(promRegs)
		stats = append(stats, metrics)
	}
	var otelMetrics *observability.OTelMetrics
	if cfg.OTel.Enabled {
		otelMetrics, err = observability.NewOTelMetrics(otel.GetMeterProvider())
		if err != nil {
			_ = observability.ShutdownOTel(ctx, providers, log)
			return fmt.Errorf("creating OpenTelemetry instruments: %w", err)
		}
		stats = append(stats, otelMetrics)
	}

	e, err := a.open(ctx, observability.TeeStatistics(stats...))
	if err != nil {
		_ = observability.ShutdownOTel(ctx, providers, log)
		return err
	}

	modules := e.fs.Modules()
	if metrics != nil {
		metrics.ObserveModules(modules)
	}
	if otelMetrics != nil {
		otelMetrics.RecordModules(ctx, len(modules))
	}

	// first snapshot, so later refreshes can announce process changes
	if err := e.fs.Refresh(ctx); err != nil {
		log.WithError(err).Warn("Initial process snapshot failed")
	}

	router := mux.NewRouter()
	vfs.NewHandlers(e.fs, log).RegisterRoutes(router)
	checker := observability.NewHealthChecker(e.fs, version).
		WithRuntimeHostCheck(func() (bool, bool) {
			return cfg.RuntimeHost.Enabled, e.loader.RuntimeHostLoaded()
		})
	observability.RegisterHealthRoutes(router, checker)
	if metrics != nil {
		observability.RegisterMetricsEndpoint(router, promRegs)
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	limiter := httputil.NewRateLimiter(cfg.Server.RateLimit.HTTPUtil())
	router.Use(httputil.RateLimitMiddleware(limiter))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      vfs.NewServerHandler(router, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(log, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		e.Close()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, log)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("Serving %d modules on %s", len(modules), server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return shutdown.WaitForShutdown(gctx)
	})

	if limiter != nil {
		g.Go(func() error { return limiter.Run(gctx) })
	}

	if path := a.v.ConfigFileUsed(); path != "" {
		a.watchConfig(gctx, g, path, e)
	}

	if refreshEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(refreshEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := e.fs.Refresh(gctx); err != nil {
						log.WithError(err).Warn("Process refresh failed")
					}
				}
			}
		})
	}

	return g.Wait()
}

// watchConfig reapplies the log level whenever the config file changes
func (a *app) watchConfig(ctx context.Context, g *errgroup.Group, path string, e *engine) {
	watcher, err := config.NewWatcher(path, config.DefaultDebounce)
	if err != nil {
		a.log.WithError(err).Warn("Config file changes will not be applied")
		return
	}
	changes, err := watcher.Start()
	if err != nil {
		_ = watcher.Stop()
		a.log.WithError(err).Warn("Config file changes will not be applied")
		return
	}

	g.Go(func() error {
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changes:
				a.reloadLogLevel(e.fs)
			}
		}
	})
}

// notifier receives module broadcasts
type notifier interface {
	Notify(event plugins.Event, payload []byte)
}

// reloadLogLevel re-reads the config file and, when the effective level
// changed, applies it and broadcasts EventVerbosityChange with the new level
func (a *app) reloadLogLevel(n notifier) {
	if err := a.v.ReadInConfig(); err != nil {
		a.log.WithError(err).Warn("Failed to reload config")
		return
	}

	before := a.log.GetLevel()
	if err := observability.SetLevel(a.log, a.v.GetString("log.level")); err != nil {
		a.log.WithError(err).Warn("Ignoring reloaded log level")
		return
	}
	level := a.log.GetLevel()
	if level == before {
		return
	}

	syncStandardLogger(a.log)
	a.log.Infof("Log level changed from %s to %s", before, level)
	n.Notify(plugins.EventVerbosityChange, []byte(level.String()))
}
