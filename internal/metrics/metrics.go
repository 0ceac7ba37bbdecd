package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Recompute metrics
	RecomputesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_recomputes_total",
			Help: "Total recompute runs by result",
		},
		[]string{"result"},
	)

	RecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screentime_recompute_duration_seconds",
			Help:    "Recompute duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	EventsFolded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_events_folded_total",
			Help: "Total usage events folded into durations",
		},
	)

	// Usage metrics
	TodayMilliseconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screentime_today_milliseconds",
			Help: "Foreground time counted today after exclusions",
		},
	)

	AppTodayMilliseconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "screentime_app_today_milliseconds",
			Help: "Foreground time counted today per application",
		},
		[]string{"app"},
	)

	// Persistence metrics
	PersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_persist_failures_total",
			Help: "Daily usage writes that failed",
		},
	)

	RetentionDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_retention_deleted_total",
			Help: "Records removed by the retention pass",
		},
		[]string{"kind"},
	)

	// Tracking state
	TrackingEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screentime_tracking_enabled",
			Help: "1 when periodic tracking is enabled",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RecomputesTotal,
		RecomputeDuration,
		EventsFolded,
		TodayMilliseconds,
		AppTodayMilliseconds,
		PersistFailures,
		RetentionDeleted,
		TrackingEnabled,
	)
}

// ObserveToday records the latest total and per-app breakdown.
func ObserveToday(totalMillis int64, perApp map[string]int64) {
	TodayMilliseconds.Set(float64(totalMillis))
	AppTodayMilliseconds.Reset()
	for app, ms := range perApp {
		AppTodayMilliseconds.WithLabelValues(app).Set(float64(ms))
	}
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// TodayFunc returns the value served on /today, encoded as JSON.
type TodayFunc func() any

// NewServer creates a new metrics server. today may be nil.
func NewServer(addr string, today TodayFunc, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if today != nil {
		mux.HandleFunc("/today", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(today()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start binds the listener, unless one was provided, and serves in the
// background. Bind errors are returned to the caller.
func (s *Server) Start() error {
	ln := s.listener
	if ln != nil {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
	} else {
		var err error
		ln, err = net.Listen("tcp", s.server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
		}
		s.listener = ln
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
