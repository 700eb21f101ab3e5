// Package observability provides structured logging, Prometheus and
// OpenTelemetry metrics, health checks and graceful shutdown for procvfs.
//
// # Structured Logging
//
// Create logger:
//
//	logger, err := observability.NewLogger("info", observability.FormatJSON, os.Stderr)
//	logger.WithField("module", "sysinfo").Info("Module registered")
//
// Request-scoped logging:
//
//	ctx = observability.WithRequestID(ctx, id)
//	observability.FromContext(ctx).Warn("Read failed")
//
// # Dispatch Statistics
//
// Both metric backends implement plugins.Statistics and can be combined:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	otelMetrics, _ := observability.NewOTelMetrics(nil)
//	dispatcher := plugins.NewDispatcher(registry,
//		plugins.WithStatistics(observability.TeeStatistics(metrics, otelMetrics)))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(registry, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg.OTel, cfg.System, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/plugins: Statistics hook and loader spans
package observability
