// Package metrics exposes Prometheus instrumentation for the shipper.
//
// Collectors are registered on the default registry via promauto; embedding
// applications expose them through their own /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEnqueuedTotal counts events accepted into the pending queue.
	EventsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "libhoney_events_enqueued_total",
		Help: "Total number of events accepted into the pending queue",
	})

	// EventsDroppedTotal counts events that never reached the wire,
	// labeled by drop reason (sampling, overflow, encoding, shutdown).
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libhoney_events_dropped_total",
			Help: "Total number of events dropped before transmission",
		},
		[]string{"reason"},
	)

	// BatchesSentTotal counts batch POSTs by coarse outcome.
	BatchesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libhoney_batches_sent_total",
			Help: "Total number of batch requests issued",
		},
		[]string{"status"},
	)

	// EventsSentTotal counts events that traveled in a batch body.
	EventsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "libhoney_events_sent_total",
		Help: "Total number of events shipped in batch bodies",
	})

	// BatchSendDuration observes wall-clock time per batch POST.
	BatchSendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "libhoney_batch_send_duration_seconds",
		Help:    "Time spent sending one batch request",
		Buckets: prometheus.DefBuckets,
	})

	// QueueDepth tracks the current number of pending events.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "libhoney_queue_depth",
		Help: "Current number of events waiting in the pending queue",
	})

	// BatchesInFlight tracks occupied batch slots.
	BatchesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "libhoney_batches_in_flight",
		Help: "Number of batch slots currently sending",
	})

	// ResponsesDroppedTotal counts outcomes dropped because the response
	// channel was full and BlockOnResponse was off.
	ResponsesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "libhoney_responses_dropped_total",
		Help: "Total number of outcomes dropped from the response channel",
	})
)

// RecordDrop increments the drop counter for one reason.
func RecordDrop(reason string) {
	EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordBatch records one completed batch POST.
func RecordBatch(status string, events int, duration time.Duration) {
	BatchesSentTotal.WithLabelValues(status).Inc()
	EventsSentTotal.Add(float64(events))
	BatchSendDuration.Observe(duration.Seconds())
}
