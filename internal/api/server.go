package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/catalog"
	"github.com/JakeFAU/price-error-watch/internal/metrics"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// StatusProvider exposes the orchestrator counters.
type StatusProvider interface {
	Status() monitor.Status
}

// CategoryLister lists the watched categories.
type CategoryLister interface {
	All() []catalog.Category
}

// HistoryReader reads the price ledger.
type HistoryReader interface {
	History(productID string) (monitor.LedgerRecord, bool)
	ReferencePrice(productID string) (float64, bool)
	HistoricalMinimum(productID string) (float64, bool)
}

// ScanTrigger queues an extra cycle.
type ScanTrigger interface {
	Trigger() bool
}

// Config controls the server.
type Config struct {
	ServiceName string
	// APIKey protects POST routes when set.
	APIKey  string
	Timeout time.Duration
}

// Server wires HTTP handlers to the monitor state.
type Server struct {
	router     chi.Router
	status     StatusProvider
	categories CategoryLister
	history    HistoryReader
	trigger    ScanTrigger
	ids        monitor.IDGenerator
	clock      monitor.Clock
	started    time.Time
	cfg        Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. trigger may be nil,
// in which case POST /v1/scan answers 503.
func NewServer(
	status StatusProvider,
	categories CategoryLister,
	history HistoryReader,
	trigger ScanTrigger,
	ids monitor.IDGenerator,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "price-error-watch"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Server{
		status:     status,
		categories: categories,
		history:    history,
		trigger:    trigger,
		ids:        ids,
		clock:      clock,
		started:    clock.Now(),
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.Timeout))

	r.Get("/", s.home)
	r.Get("/health", s.health)
	r.Get("/healthz", s.healthz)
	r.Get("/ping", s.ping)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/categories", s.listCategories)
		r.Get("/products/{id}/history", s.getHistory)
		r.Group(func(r chi.Router) {
			if cfg.APIKey != "" {
				r.Use(s.apiKeyMiddleware(cfg.APIKey))
			}
			r.Post("/scan", s.triggerScan)
		})
	})

	s.router = r
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, s.cfg.ServiceName)
}

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	uptime := s.clock.Now().Sub(s.started).Truncate(time.Second)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": s.cfg.ServiceName,
		"uptime":  uptime.String(),
		"message": "watching for price errors",
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Debug("ping write failed", zap.Error(err))
	}
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		s.writeError(w, http.StatusServiceUnavailable, "monitor unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	if s.categories == nil {
		s.writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"categories": s.categories.All()})
}

type historyResponse struct {
	ProductID         string                      `json:"product_id"`
	Name              string                      `json:"name"`
	History           []monitor.PriceHistoryEntry `json:"history"`
	ReferencePrice    float64                     `json:"reference_price"`
	HistoricalMinimum float64                     `json:"historical_minimum"`
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok := s.history.History(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	resp := historyResponse{ProductID: id, Name: rec.Name, History: rec.History}
	resp.ReferencePrice, _ = s.history.ReferencePrice(id)
	resp.HistoricalMinimum, _ = s.history.HistoricalMinimum(id)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) triggerScan(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	if !s.trigger.Trigger() {
		s.writeError(w, http.StatusConflict, "scan already queued")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" && s.ids != nil {
			if id, err := s.ids.NewID(); err == nil {
				reqID = id
			}
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already sent.
		s.logger.Debug("write response failed", zap.Int("status", status), zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
