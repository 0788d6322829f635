// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts accepted stakes by side and action (buy/sell).
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsboard_bets_total",
		Help: "Total number of stakes accepted",
	}, []string{"side", "action"})

	// StakeLatency tracks end-to-end stake execution time.
	StakeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oddsboard_stake_latency_seconds",
		Help:    "Stake execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddsboard_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddsboard_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsboard_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oddsboard_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// StakeRejections counts stakes refused before execution, by reason
	// (balance, limit, oversell, closed).
	StakeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsboard_stake_rejections_total",
		Help: "Stakes rejected by validation",
	}, []string{"reason"})

	// MarketVolume tracks cumulative traded amount per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsboard_market_volume_total",
		Help: "Cumulative traded amount",
	}, []string{"market_id", "side"})

	// MarketsResolved counts settled markets by outcome.
	MarketsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddsboard_markets_resolved_total",
		Help: "Markets resolved",
	}, []string{"outcome"})

	// MarketMakerMaxLoss is the worst-case LMSR subsidy on one market.
	// It stays zero under volume-share pricing.
	MarketMakerMaxLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddsboard_market_maker_max_loss",
		Help: "Worst-case market maker loss per market",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern, not raw path, to keep label cardinality bounded.
		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
