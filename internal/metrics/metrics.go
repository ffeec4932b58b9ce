package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HoldsRequested counts hold requests by outcome (granted, unavailable, duplicate, invalid).
	HoldsRequested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "holds_requested_total",
			Help:      "The total number of hold requests by outcome",
		},
		[]string{"outcome"},
	)

	// HoldsResolved counts holds reaching a terminal state.
	HoldsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "holds_resolved_total",
			Help:      "The total number of holds reaching a terminal state",
		},
		[]string{"state"},
	)

	// BookingsCommitted counts bookings appended to the ledger.
	BookingsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "bookings_committed_total",
			Help:      "The total number of committed bookings",
		},
	)

	// BookingPersistFailures counts payments that succeeded without a durable booking.
	BookingPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "booking_persist_failures_total",
			Help:      "Payments confirmed by the provider whose booking could not be recorded",
		},
	)

	// PaymentCallbacks counts provider callbacks by outcome and whether they changed state.
	PaymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payment",
			Name:      "callbacks_total",
			Help:      "The total number of payment provider callbacks",
		},
		[]string{"outcome", "result"},
	)

	// ActiveHolds tracks holds that still own seats (ACTIVE, PENDING or COMMITTING).
	ActiveHolds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "booking",
			Name:      "active_holds",
			Help:      "Holds currently owning seats",
		},
	)

	// RateLimited counts write requests rejected by the token bucket, by bucket class.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"class"},
	)
)
