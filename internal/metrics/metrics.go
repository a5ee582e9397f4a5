// Package metrics exposes Prometheus instrumentation for gateway calls,
// sync polls and the unread badge. The listener is optional; the
// collectors are always registered.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_gateway_requests_total",
			Help: "Remote gateway calls by operation and outcome",
		},
		[]string{"operation", "outcome"}, // "success", "error"
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classroom_gateway_request_duration_seconds",
			Help:    "Duration of remote gateway calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Sync
	SyncPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_sync_polls_total",
			Help: "Sync polls by client and outcome",
		},
		[]string{"client", "outcome"}, // "applied", "failed", "dropped"
	)

	UnreadNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "classroom_unread_notifications",
			Help: "Unread notifications in the most recently applied list",
		},
	)

	NotificationsFannedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_notifications_fanned_out_total",
			Help: "Notifications created by teacher publishing, by category",
		},
		[]string{"type"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "classroom_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classroom_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)

// RecordGatewayCall records one remote call.
func RecordGatewayCall(operation string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	GatewayRequests.WithLabelValues(operation, outcome).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordPoll records one sync poll outcome.
func RecordPoll(client, outcome string) {
	SyncPolls.WithLabelValues(client, outcome).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics listener on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
