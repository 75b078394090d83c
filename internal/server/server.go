// Package server exposes the mediator over HTTP: a request/response route,
// a streaming route, a notification route, and health and metrics endpoints.
// Every dispatch runs through the request-scoped mediator resolved by
// requestabort, so work started on behalf of a request stops when the client
// goes away.
package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mcncl/mediator-abort/internal/errors"
	"github.com/mcncl/mediator-abort/internal/logging"
	"github.com/mcncl/mediator-abort/internal/metrics"
	loggingMiddleware "github.com/mcncl/mediator-abort/internal/middleware/logging"
	"github.com/mcncl/mediator-abort/internal/middleware/request"
	"github.com/mcncl/mediator-abort/internal/telemetry"
	"github.com/mcncl/mediator-abort/pkg/mediator"
	"github.com/mcncl/mediator-abort/pkg/requestabort"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the dependencies of a Server
type Config struct {
	Resolver       *requestabort.Resolver
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	Telemetry      *telemetry.Provider // optional
	RequestTimeout time.Duration
	MaxRequestSize int64
}

// Server serves the HTTP API
type Server struct {
	cfg   Config
	ready atomic.Bool
}

// New creates a Server. It is not ready until SetReady(true) is called.
func New(cfg Config) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, errors.NewValidationError("server requires a mediator resolver")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 1 << 20
	}
	return &Server{cfg: cfg}, nil
}

// SetReady marks the service as ready to receive traffic
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the root handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.Handle("POST /ping", s.dispatchRoute("/ping", s.handlePing))
	mux.Handle("GET /countdown", s.dispatchRoute("/countdown", s.handleCountdown))
	mux.Handle("POST /events", s.dispatchRoute("/events", s.handleEvents))

	tracing := func(next http.Handler) http.Handler { return next }
	if s.cfg.Telemetry != nil {
		tracing = s.cfg.Telemetry.TracingMiddleware
	}

	// The order of middleware is important: request ID first so every log
	// line and span carries it.
	return chainMiddleware(mux,
		request.WithRequestID,
		tracing,
		loggingMiddleware.WithStructuredLogging(s.cfg.Logger),
	)
}

// dispatchRoute bounds the request by the configured timeout, opens a
// mediator scope for it, and records HTTP metrics under route.
func (s *Server) dispatchRoute(route string, h http.HandlerFunc) http.Handler {
	return chainMiddleware(h,
		recordHTTPMetrics(route),
		request.WithTimeout(s.cfg.RequestTimeout),
		s.cfg.Resolver.Middleware,
	)
}

func recordHTTPMetrics(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := logging.NewLogResponseWriter(w)
			next.ServeHTTP(lrw, r)
			metrics.RecordHTTPRequest(route, lrw.StatusCode(), time.Since(start))
		})
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var ping Ping
	if err := s.decode(w, r, &ping); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := requestabort.FromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	pong, err := mediator.Send[Pong](r.Context(), m, ping)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pong)
}

// handleCountdown streams ticks as newline-delimited JSON, flushing after
// each one. Errors before the first tick get a regular error response;
// later errors end the stream with an error line.
func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from", 10)
	if err != nil {
		writeError(w, r, err)
		return
	}
	interval, err := queryInt(r, "interval_ms", 100)
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := requestabort.FromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false
	start := func() {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
	}

	for tick, err := range mediator.CreateStream[Tick](r.Context(), m, Countdown{From: from, IntervalMS: interval}) {
		if err != nil {
			if !started {
				writeError(w, r, err)
				return
			}
			err = errors.Classify(err)
			logDispatchError(r, err)
			if !errors.IsCanceled(err) {
				_ = enc.Encode(map[string]errors.ErrorResponse{"error": errors.ToErrorResponse(err)})
			}
			return
		}

		start()
		if err := enc.Encode(tick); err != nil {
			return
		}
		if err := rc.Flush(); err != nil && !stderrors.Is(err, http.ErrNotSupported) {
			return
		}
	}
	start()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var event AuditEvent
	if err := s.decode(w, r, &event); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := requestabort.FromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := mediator.Publish(r.Context(), m, event); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.Is(err, io.EOF):
			return nil
		case stderrors.As(err, &tooLarge):
			return errors.NewValidationError("request body too large")
		default:
			return errors.NewValidationError("failed to decode request body: " + err.Error())
		}
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name + " must be an integer")
	}
	return n, nil
}

func logDispatchError(r *http.Request, err error) {
	logger := logging.FromContext(r.Context())
	switch status := errors.HTTPStatus(err); {
	case errors.IsCanceled(err):
		logger.InfoContext(r.Context(), "Request abandoned", "error", err)
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "Request failed", "error", err, "status", status)
	default:
		logger.WarnContext(r.Context(), "Request rejected", "error", err, "status", status)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	err = errors.Classify(err)
	logDispatchError(r, err)

	resp := errors.ToErrorResponse(err)
	if resp.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	writeJSON(w, errors.HTTPStatus(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// chainMiddleware applies middleware so they execute in the order they're passed
func chainMiddleware(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
