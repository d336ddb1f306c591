// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts portfolio cycles by outcome (ok, failed, locked).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenerbot_cycles_total",
		Help: "Total portfolio cycles run",
	}, []string{"portfolio", "status"})

	// CycleDuration observes wall-clock cycle duration.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "screenerbot_cycle_duration_seconds",
		Help:    "Portfolio cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"portfolio"})

	// OpenPositions tracks open positions per portfolio after each cycle.
	OpenPositions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "screenerbot_open_positions",
		Help: "Open positions per portfolio",
	}, []string{"portfolio"})

	// TradesClosed counts closed trades by exit reason.
	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenerbot_trades_closed_total",
		Help: "Closed trades by exit reason",
	}, []string{"portfolio", "strategy", "reason"})

	// QuoteLookups counts quote oracle lookups by result (hit, miss, error).
	QuoteLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenerbot_quote_lookups_total",
		Help: "Quote oracle lookups by result",
	}, []string{"result"})
)

// Serve exposes /metrics on the given port until ctx is cancelled.
func Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}
