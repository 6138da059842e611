package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/funnel/internal/app"
	"github.com/okian/funnel/internal/config"
	"github.com/okian/funnel/internal/domain/model"
	"github.com/okian/funnel/pkg/logger"
	"github.com/okian/funnel/pkg/metrics"
)

// HTTP server timeout constants.
const (
	metricsAddr       = ":9402"
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// main runs the telemetry core as a standalone smoke harness: it starts the
// service, records a few sample events, triggers an upload, and serves the
// Prometheus registry until interrupted. Real hosts embed app.Service
// directly.
func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Create and start the service with configuration options
	svc := app.New(
		app.WithConfig(cfg),
		app.WithLogger(loggerInstance),
		app.WithMetadataProvider(hostMetadata{}),
		app.WithNotificationSink(logSink{logger: loggerInstance.Named("notify")}),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop(context.Background())

	recordSampleEvents(ctx, svc, loggerInstance)

	// Expose the custom registry for scraping.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		loggerInstance.Info(ctx, "serving metrics", logger.String("addr", metricsAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("metrics server failed: " + err.Error() + "\n")
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down...")

	if err := srv.Shutdown(context.Background()); err != nil {
		loggerInstance.Error(ctx, "metrics server shutdown failed", logger.Error(err))
	}
}

// recordSampleEvents exercises the record/upload path once so a smoke run
// produces visible traffic.
func recordSampleEvents(ctx context.Context, svc *app.Service, log logger.Logger) {
	samples := []struct {
		name   string
		params model.Params
	}{
		{"levelUp", model.Params{"level": 1}},
		{"levelUp", model.Params{"level": 2}},
		{"itemCollected", model.Params{"item": "coin", "count": 25}},
	}
	for _, s := range samples {
		action, err := svc.RecordEvent(ctx, s.name, s.params)
		if err != nil {
			log.Warn(ctx, "recording sample event failed", logger.String("event", s.name), logger.Error(err))
			continue
		}
		if action != nil {
			log.Info(ctx, "trigger fired", logger.String("trigger_id", action.TriggerID))
		}
	}
	if err := svc.Upload(ctx); err != nil {
		log.Warn(ctx, "manual upload failed", logger.Error(err))
	}
	log.Info(ctx, "sample events recorded", logger.Int("queued", svc.QueueLen()))
}

// hostMetadata is the harness's stand-in for a real host's device facts.
type hostMetadata struct{}

func (hostMetadata) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"platform":   "linux",
		"sdkVersion": "0.1.0",
	}
}

// logSink logs notifications instead of surfacing them to a UI.
type logSink struct {
	logger logger.Logger
}

func (s logSink) SessionConfigured(cached bool) {
	s.logger.Info(context.Background(), "session configured", logger.Bool("cached", cached))
}

func (s logSink) SessionConfigurationFailed(err error) {
	s.logger.Warn(context.Background(), "session configuration failed", logger.Error(err))
}

func (s logSink) ImageCachePopulated() {
	s.logger.Info(context.Background(), "image cache populated")
}

func (s logSink) ImageCacheFailed(err error) {
	s.logger.Warn(context.Background(), "image cache failed", logger.Error(err))
}
