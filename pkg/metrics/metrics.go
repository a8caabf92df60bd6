// Package metrics exposes the Prometheus instrumentation of the server:
// EPP command counters, session gauges, and front-end request counters,
// served over HTTP at /metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qenex/regd/internal/logger"
)

var (
	// SessionsActive tracks currently open EPP sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epp_sessions_active",
		Help: "Number of currently open EPP sessions.",
	})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epp_commands_total",
		Help: "EPP commands processed, by verb and object mapping.",
	}, []string{"verb", "object"})

	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epp_results_total",
		Help: "EPP results sent, by result code.",
	}, []string{"code"})

	frontendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontend_requests_total",
		Help: "RDAP and WHOIS requests served, by service and outcome.",
	}, []string{"service", "outcome"})
)

// ObserveCommand records one processed EPP command and its result code.
func ObserveCommand(verb, object string, code int) {
	if object == "" {
		object = "none"
	}
	commandsTotal.WithLabelValues(verb, object).Inc()
	resultsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveFrontend records one RDAP or WHOIS request.
func ObserveFrontend(service, outcome string) {
	frontendRequests.WithLabelValues(service, outcome).Inc()
}

// Server serves the /metrics scrape endpoint.
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics HTTP server bound to addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{srv: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Start begins serving in the calling goroutine and blocks until the
// server stops.
func (s *Server) Start() error {
	logger.Info("Metrics server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight scrapes.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
