// Package health serves the local diagnostics endpoints:
//
//   - /healthz: liveness; 200 while the process can serve HTTP.
//   - /readyz: 200 only when every registered [Checker] passes.
//   - /state: the current pipeline state as JSON.
//   - /cancel: POST aborts the in-flight command.
//   - /metrics: Prometheus exposition of the pipeline metrics.
//
// The server binds to loopback by default. It is a debugging aid, not a
// control API.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/dawvox/internal/observe"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

// Checker is a named readiness probe. Check returns nil when the component
// is usable.
type Checker struct {
	// Name is the key in the /readyz response, e.g. "stt" or "journal".
	Name string

	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithCheckers adds readiness checks, evaluated in order.
func WithCheckers(c ...Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, c...) }
}

// WithState sets the function whose result /state serves.
func WithState(fn func() any) Option {
	return func(h *Handler) { h.state = fn }
}

// WithCancel enables POST /cancel.
func WithCancel(fn func()) Option {
	return func(h *Handler) { h.cancel = fn }
}

// WithMetricsHandler replaces the /metrics handler. The default serves the
// Prometheus default registry, which the OpenTelemetry exporter feeds.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler serves the diagnostics endpoints. Options are fixed at
// construction, so it is safe for concurrent use.
type Handler struct {
	checkers []Checker
	state    func() any
	cancel   func()
	metrics  http.Handler
}

// New creates a [Handler].
func New(opts ...Option) *Handler {
	h := &Handler{metrics: promhttp.Handler()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 when all checkers pass and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	ok := true
	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ok = false
			continue
		}
		checks[c.Name] = "ok"
	}

	res, status := result{Status: "ok", Checks: checks}, http.StatusOK
	if !ok {
		res.Status, status = "fail", http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// State serves the pipeline snapshot.
func (h *Handler) State(w http.ResponseWriter, _ *http.Request) {
	if h.state == nil {
		writeJSON(w, http.StatusNotFound, result{Status: "no pipeline"})
		return
	}
	writeJSON(w, http.StatusOK, h.state())
}

// Cancel aborts the in-flight command.
func (h *Handler) Cancel(w http.ResponseWriter, _ *http.Request) {
	if h.cancel == nil {
		writeJSON(w, http.StatusNotFound, result{Status: "no pipeline"})
		return
	}
	h.cancel()
	writeJSON(w, http.StatusAccepted, result{Status: "ok"})
}

// Register adds the diagnostics routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /state", h.State)
	mux.HandleFunc("POST /cancel", h.Cancel)
	mux.Handle("GET /metrics", h.metrics)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("health: encode response", "err", err)
	}
}

// Server runs the diagnostics handler on its own listener.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewServer binds addr and wraps h with the observe middleware. Binding
// happens here so a port conflict is reported before the pipeline starts.
func NewServer(addr string, h *Handler, m *observe.Metrics) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	var handler http.Handler = mux
	if m != nil {
		handler = observe.Middleware(m)(mux)
	}
	return &Server{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
