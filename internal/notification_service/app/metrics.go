package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "events_received_total",
			Help:      "Total number of loyalty events received from NATS.",
		},
		[]string{"subject"},
	)

	eventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "events_processed_total",
			Help:      "Total number of loyalty events processed, by outcome.",
		},
		[]string{"subject", "status"}, // status: "success", "ignored", "error_decode", "error_db_save"
	)

	notificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "notifications_created_total",
			Help:      "Total number of notification rows written.",
		},
		[]string{"kind"},
	)

	eventProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notification",
			Name:      "event_processing_duration_seconds",
			Help:      "Duration of loyalty event processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"subject"},
	)
)
