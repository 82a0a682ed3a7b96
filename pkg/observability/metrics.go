package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound gateway call metrics
	gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axis_gateway_requests_total",
			Help: "Total number of outbound gateway calls",
		},
		[]string{"operation", "outcome"}, // outcome: ok, rejected, network_error, envelope_error
	)

	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "axis_gateway_request_duration_seconds",
			Help:    "Duration of outbound gateway calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Callback intake metrics
	callbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axis_callbacks_total",
			Help: "Total number of inbound callbacks by processing outcome",
		},
		[]string{"outcome"}, // applied, duplicate, orphan, checksum_mismatch, decrypt_error, decode_error, persist_error
	)

	// Payout lifecycle metrics
	payoutsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "axis_payouts_created_total",
			Help: "Total number of payout requests created",
		},
	)

	payoutStatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axis_payout_status_transitions_total",
			Help: "Total number of projected status transitions",
		},
		[]string{"to"},
	)
)

// ObserveGatewayRequest records one outbound gateway call
func ObserveGatewayRequest(operation, outcome string, duration time.Duration) {
	gatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	gatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveCallback records one inbound callback by outcome
func ObserveCallback(outcome string) {
	callbacksTotal.WithLabelValues(outcome).Inc()
}

// ObservePayoutCreated records a successful payout creation
func ObservePayoutCreated() {
	payoutsCreatedTotal.Inc()
}

// ObserveStatusTransition records a projected status change
func ObserveStatusTransition(to string) {
	payoutStatusTransitionsTotal.WithLabelValues(to).Inc()
}
