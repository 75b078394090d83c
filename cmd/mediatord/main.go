package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcncl/mediator-abort/internal/config"
	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/internal/instrument"
	"github.com/mcncl/mediator-abort/internal/logging"
	"github.com/mcncl/mediator-abort/internal/metrics"
	"github.com/mcncl/mediator-abort/internal/publisher"
	"github.com/mcncl/mediator-abort/internal/server"
	"github.com/mcncl/mediator-abort/internal/telemetry"
	"github.com/mcncl/mediator-abort/pkg/mediator"
	"github.com/mcncl/mediator-abort/pkg/requestabort"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var version = "dev"

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to configuration file (JSON or YAML)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the configuration")
	logFormat := flag.String("log-format", "", "Log format (json, text, dev); overrides the configuration")
	flag.Parse()

	logger := logging.NewLogger(*logLevel, *logFormat)

	// Flags take precedence over the file and environment
	override := &config.Config{
		Server: config.ServerConfig{LogLevel: *logLevel, LogFormat: *logFormat},
	}
	cfg, err := config.Load(*configFile, override)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = logging.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat).With("version", version)
	slog.SetDefault(logger)
	logger.Info("Configuration loaded", "config", cfg.String())

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	if err := metrics.InitMetrics(reg); err != nil {
		logger.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	var tp *telemetry.Provider
	if cfg.Telemetry.EnableTracing {
		tp, err = startTelemetry(ctx, cfg.Telemetry)
		if err != nil {
			logger.Error("Failed to start telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("Telemetry shutdown error", "error", err)
			}
		}()
	}

	var pub publisher.Publisher
	if cfg.PubSub.Enabled() {
		pub, err = publisher.NewPubSubPublisher(ctx, publisher.Config{
			ProjectID:       cfg.PubSub.ProjectID,
			TopicID:         cfg.PubSub.TopicID,
			CredentialsFile: cfg.PubSub.CredentialsFile,
		})
		if err != nil {
			if errors.IsConnectionError(err) {
				err = errors.Wrap(err, "failed to connect to Google Cloud Pub/Sub")
			} else {
				err = errors.Wrap(err, "failed to create publisher")
			}
			err = errors.WithDetails(err, map[string]interface{}{
				"project_id": cfg.PubSub.ProjectID,
				"topic_id":   cfg.PubSub.TopicID,
			})

			logger.Error("Publisher initialization error", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		logger.Info("Forwarding audit events to Pub/Sub", "topic_id", cfg.PubSub.TopicID)
	}

	handlers, err := newRegistry(pub, logger)
	if err != nil {
		logger.Error("Failed to register handlers", "error", err)
		os.Exit(1)
	}

	resolver, err := newResolver(cfg.Mediator, handlers, logger, tp.Tracer())
	if err != nil {
		logger.Error("Failed to create mediator resolver", "error", err)
		os.Exit(1)
	}

	api, err := server.New(server.Config{
		Resolver:       resolver,
		Logger:         logger,
		Gatherer:       reg,
		Telemetry:      tp,
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
		MaxRequestSize: int64(cfg.Server.MaxRequestSize),
	})
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Configure server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Mark as ready to receive traffic
	api.SetReady(true)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down server", "signal", sig.String())

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout.Std())
	defer cancel()

	api.SetReady(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Server shutdown complete")
}

func startTelemetry(ctx context.Context, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = cfg.ServiceName
	tcfg.ServiceVersion = version
	tcfg.Environment = cfg.Environment
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.SamplingRatio = cfg.TraceSamplingRatio

	tp, err := telemetry.NewProvider(tcfg)
	if err != nil {
		return nil, err
	}
	if err := tp.Start(ctx); err != nil {
		return nil, err
	}
	return tp, nil
}

// newRegistry registers the service handlers, forwarding audit events to pub
// through a circuit breaker when one is configured.
func newRegistry(pub publisher.Publisher, logger *slog.Logger) (*mediator.Registry, error) {
	reg := mediator.NewRegistry()
	if err := server.RegisterHandlers(reg); err != nil {
		return nil, err
	}
	if pub != nil {
		cb := publisher.NewCircuitBreaker(pub, publisher.DefaultCircuitBreakerConfig())
		cb.OnStateChange(func(from, to publisher.CircuitState) {
			logger.Warn("Pub/Sub circuit breaker changed state", "from", from.String(), "to", to.String())
		})
		publisher.Forward[server.AuditEvent](reg, cb)
	}
	return reg, nil
}

// newResolver builds the per-request mediator: the dispatcher wrapped with
// logging, metrics, tracing and, when configured, a shared rate limiter.
func newResolver(cfg config.MediatorConfig, reg *mediator.Registry, logger *slog.Logger, tracer trace.Tracer) (*requestabort.Resolver, error) {
	lifetime, err := requestabort.ParseLifetime(cfg.Lifetime)
	if err != nil {
		return nil, err
	}
	strategy, err := mediator.ParsePublishStrategy(cfg.PublishStrategy)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}

	decorators := []instrument.Decorator{
		instrument.Logging(logger),
		instrument.Metrics(),
		instrument.Tracing(tracer),
		instrument.RateLimit(limiter),
	}

	return requestabort.NewResolver(requestabort.Options{
		Factory: func() mediator.Mediator {
			return instrument.Chain(mediator.New(reg, mediator.WithPublishStrategy(strategy)), decorators...)
		},
		Lifetime: lifetime,
	})
}
