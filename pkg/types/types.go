// Package types defines the core data structures shared across the shipper.
//
// This package provides:
//   - Event: a validated telemetry event ready for transmission
//   - Response: the per-event delivery outcome handed to the response callback
//   - Batch: a group of events sharing a destination
//   - Interface definitions for pluggable senders
//   - The Config structure recognized by every component
//
// Events reaching this layer are assumed to be validated and normalized by
// the caller (timestamps coerced, payload cloned, dataset filled in). The
// transmission subsystem never mutates an Event after intake.
package types

import (
	"time"
)

// Event is a validated, immutable telemetry event submitted for delivery.
//
// The destination of an event is the triple (APIHost, WriteKey, Dataset).
// Events sharing a destination are shipped together in a single batch POST.
//
// Metadata is never transmitted; it is carried through the pipeline and
// returned verbatim on the Response for this event so callers can correlate
// outcomes with submissions.
type Event struct {
	// Timestamp is the event time, serialized as RFC 3339 under the
	// wire key "time". Required.
	Timestamp time.Time `json:"time"`

	// APIHost is the base URL of the ingest service. Required.
	APIHost string `json:"-"`

	// WriteKey authenticates the event with the ingest service. Required.
	WriteKey string `json:"-"`

	// Dataset names the destination dataset. Validation guarantees it is
	// non-empty by the time an event reaches the transmission.
	Dataset string `json:"-"`

	// SampleRate records the rate at which this event was (or should be)
	// sampled. 1 means every event is sent.
	SampleRate uint `json:"samplerate,omitempty"`

	// Data is the event payload, an arbitrary JSON-serializable mapping.
	Data map[string]interface{} `json:"data,omitempty"`

	// Metadata is opaque to the shipper and returned on the Response.
	Metadata interface{} `json:"-"`
}

// Response is the outcome of attempting to deliver a single event.
//
// Exactly one Response is produced for every submitted event, whether the
// event was dropped by sampling, dropped on queue overflow, failed to
// encode, or made it onto the wire.
type Response struct {
	// Err is non-nil when the event was not accepted by the ingest
	// service: sampling drop, overflow, encode failure, transport
	// failure, or a per-event server error.
	Err error

	// StatusCode is the per-event status from the batch response, or the
	// HTTP status of the whole request when the request itself failed.
	// Zero when no HTTP exchange took place.
	StatusCode int

	// Duration is the wall-clock time from request start to response
	// receipt for the batch this event belonged to. Encode-failed events of
	// a partition that was sent carry that request's duration. Zero when no
	// request was attempted for the event.
	Duration time.Duration

	// Body holds the raw response body for failed requests, when one was
	// available. Useful for diagnosing rejections.
	Body []byte

	// Timeout reports that Err was caused by the per-request deadline
	// expiring.
	Timeout bool

	// Metadata is the value attached to the originating event, verbatim.
	Metadata interface{}
}

// Batch is an ordered group of events sharing a destination triple,
// shipped as one HTTP POST body.
type Batch struct {
	// ID correlates log lines, traces, and metrics for one POST.
	ID string

	APIHost  string
	WriteKey string
	Dataset  string

	// Events preserves the submission order of its members.
	Events []*Event
}

// SenderStats is a point-in-time snapshot of transmission counters.
type SenderStats struct {
	Enqueued        int64 // events accepted into the pending queue
	SampledOut      int64 // events dropped by the sampling gate
	Overflowed      int64 // events dropped because the queue was full
	BatchesSent     int64 // HTTP POSTs issued
	EventsSent      int64 // events whose outcome carries no error
	EncodeFailures  int64 // events omitted from a body for failing to serialize
	TransportErrors int64 // events whose outcome is a transport or timeout error
}
