package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FillsProcessed counts notified fills by the path that delivered them.
	FillsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperbot_fills_processed_total",
			Help: "Fills recorded after notification, by source",
		},
		[]string{"source"},
	)

	// NotificationFailures counts notifications that could not be delivered.
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperbot_notification_failures_total",
			Help: "Fill notifications that failed to deliver",
		},
	)

	// RecoveryFills counts fills found by startup recovery and backup polling.
	RecoveryFills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperbot_recovery_fills_total",
			Help: "Fills found outside the live subscription",
		},
		[]string{"pass"},
	)

	WSReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hyperbot_ws_reconnects_total",
			Help: "Successful websocket reconnects",
		},
	)

	ScaleOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperbot_scale_orders_total",
			Help: "Scale order placements by overall status",
		},
		[]string{"status"},
	)

	ScaleLegs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hyperbot_scale_legs_total",
			Help: "Scale order legs by placement status",
		},
		[]string{"status"},
	)

	// ExchangeRequestDuration tracks REST latency by endpoint.
	ExchangeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hyperbot_exchange_request_duration_seconds",
			Help:    "Exchange REST request duration in seconds",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"endpoint", "request"},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
