// Package telemetry sets up OpenTelemetry tracing for the service and
// provides the HTTP tracing middleware.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mcncl/mediator-abort/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider wraps the OpenTelemetry trace provider and exporter
type Provider struct {
	tp     *sdktrace.TracerProvider
	exp    sdktrace.SpanExporter
	config Config
	mu     sync.RWMutex
	isInit bool
}

// Config holds configuration for telemetry setup
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SamplingRatio  float64
	BatchTimeout   int // seconds
	ExportTimeout  int // seconds
	MaxExportBatch int
	MaxQueueSize   int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		SamplingRatio:  0.1,
		BatchTimeout:   5,    // 5 seconds
		ExportTimeout:  30,   // 30 seconds
		MaxExportBatch: 512,  // 512 spans
		MaxQueueSize:   2048, // 2048 spans
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint cannot be empty")
	}
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return fmt.Errorf("sampling ratio must be between 0 and 1")
	}
	return nil
}

// NewProvider creates a new telemetry provider
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Provider{
		config: cfg,
	}, nil
}

// Start initializes the provider with an OTLP gRPC exporter
func (p *Provider) Start(ctx context.Context) error {
	client := otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)

	exp, err := otlptrace.New(ctx, client)
	if err != nil {
		return fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	batcher := []sdktrace.BatchSpanProcessorOption{}
	if p.config.MaxExportBatch > 0 {
		batcher = append(batcher, sdktrace.WithMaxExportBatchSize(p.config.MaxExportBatch))
	}
	if p.config.MaxQueueSize > 0 {
		batcher = append(batcher, sdktrace.WithMaxQueueSize(p.config.MaxQueueSize))
	}
	if p.config.BatchTimeout > 0 {
		batcher = append(batcher, sdktrace.WithBatchTimeout(time.Duration(p.config.BatchTimeout)*time.Second))
	}
	if p.config.ExportTimeout > 0 {
		batcher = append(batcher, sdktrace.WithExportTimeout(time.Duration(p.config.ExportTimeout)*time.Second))
	}

	if err := p.start(ctx, exp, sdktrace.WithBatcher(exp, batcher...)); err != nil {
		_ = exp.Shutdown(ctx)
		return err
	}
	return nil
}

// StartWithExporter initializes the provider with exp, exporting every span
// synchronously as it ends.
func (p *Provider) StartWithExporter(ctx context.Context, exp sdktrace.SpanExporter) error {
	return p.start(ctx, exp, sdktrace.WithSyncer(exp))
}

func (p *Provider) start(ctx context.Context, exp sdktrace.SpanExporter, processor sdktrace.TracerProviderOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isInit {
		return fmt.Errorf("provider already initialized")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(p.config.ServiceName),
			semconv.ServiceVersionKey.String(p.config.ServiceVersion),
			attribute.String("environment", p.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("creating resource: %w", err)
	}

	p.exp = exp
	p.tp = sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.config.SamplingRatio))),
	)

	// Set global trace provider and W3C propagation
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	p.isInit = true

	return nil
}

// Shutdown flushes and stops the telemetry provider
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isInit {
		return nil
	}

	var errs []error

	if err := p.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down trace provider: %w", err))
	}

	if err := p.exp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down exporter: %w", err))
	}

	p.isInit = false

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Tracer returns the service tracer, or a no-op tracer when the provider is not started.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return noop.NewTracerProvider().Tracer("")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isInit {
		return noop.NewTracerProvider().Tracer(p.config.ServiceName)
	}
	return p.tp.Tracer(p.config.ServiceName)
}

// TracingMiddleware wraps an http.Handler with OpenTelemetry tracing.
// Incoming trace context headers are honoured; a request abandoned by the
// client before the handler returned is marked on the span.
func (p *Provider) TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.RLock()
		started := p.isInit
		p.mu.RUnlock()

		if !started {
			next.ServeHTTP(w, r)
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := p.Tracer().Start(ctx,
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(r.URL.Path),
				semconv.URLPathKey.String(r.URL.Path),
			),
		)
		defer span.End()

		wrapped := logging.NewLogResponseWriter(w)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(wrapped.StatusCode()))
		if wrapped.StatusCode() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(wrapped.StatusCode()))
		}
		if err := r.Context().Err(); err != nil {
			span.SetAttributes(attribute.Bool("request.aborted", true))
			span.AddEvent("request aborted", trace.WithAttributes(
				attribute.String("cause", context.Cause(r.Context()).Error()),
			))
		}
	})
}
