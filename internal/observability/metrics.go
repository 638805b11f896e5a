package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketline_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketline_bookings_total",
			Help: "PlaceBooking attempts by outcome",
		},
		[]string{"outcome"},
	)

	TicketsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketline_tickets_sold_total",
			Help: "Total tickets sold through confirmed bookings",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketline_db_tx_seconds",
			Help:    "Duration of reservation transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweptEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketline_swept_events_total",
			Help: "Events auto-completed by the status sweep",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketline_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketline_rate_limit_exceeded_total",
			Help: "Total rate limited requests",
		},
	)
)
