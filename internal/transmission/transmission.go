// Package transmission implements the delivery core of the shipper: the
// bounded queue, the size/time send triggers, the destination partitioner,
// the concurrent batch workers, and the per-event response fan-out.
//
// The package exposes a small surface: a factory keyed by transmission
// kind, the base Transmission, and the alternative sinks (discard, mock,
// writer). The client package wires one of them behind the types.Sender
// interface.
package transmission

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/productboard/libhoney-go/internal/metrics"
	"github.com/productboard/libhoney-go/pkg/errors"
	"github.com/productboard/libhoney-go/pkg/sample"
	"github.com/productboard/libhoney-go/pkg/types"

	"github.com/sirupsen/logrus"
)

// Version identifies this library on the wire.
const Version = "1.2.0"

// buildUserAgent assembles the user agent header value. The addition is
// trimmed; an empty addition leaves the base agent untouched.
func buildUserAgent(addition string) string {
	ua := fmt.Sprintf("libhoney-go/%s", Version)
	if addition = strings.TrimSpace(addition); addition != "" {
		ua = ua + " " + addition
	}
	return ua
}

// New builds the sender selected by cfg.Transmission. Disabled
// configurations get the discarding sender regardless of kind. An unknown
// kind is a configuration error.
func New(cfg types.Config) (types.Sender, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
	}

	kind := cfg.Transmission
	if cfg.Disabled {
		kind = "null"
	}

	switch kind {
	case "", "base":
		return newTransmission(cfg, logger), nil
	case "null":
		return &DiscardSender{}, nil
	case "mock":
		return NewMockSender(), nil
	case "console", "stdout":
		return NewWriterSender(os.Stdout, cfg), nil
	case "writer":
		// Deprecated alias kept for configurations written against the
		// old name.
		logger.Warn("Transmission kind \"writer\" is deprecated; use \"console\"")
		return NewWriterSender(os.Stdout, cfg), nil
	default:
		return nil, errors.Config("transmission", fmt.Sprintf("unknown transmission kind %q", kind))
	}
}

// Transmission is the base sender: events pass the sampling gate, queue in
// the dispatcher, and ship over HTTP in destination batches.
type Transmission struct {
	cfg     types.Config
	logger  *logrus.Logger
	sampler *sample.Sampler
	disp    *dispatcher
	http    *httpSender
	respond func([]types.Response)

	mutex     sync.RWMutex
	isRunning bool

	stats senderCounters
}

// senderCounters backs Stats() with atomics so workers never contend.
type senderCounters struct {
	enqueued        atomic.Int64
	sampledOut      atomic.Int64
	overflowed      atomic.Int64
	batchesSent     atomic.Int64
	eventsSent      atomic.Int64
	encodeFailures  atomic.Int64
	transportErrors atomic.Int64
}

func newTransmission(cfg types.Config, logger *logrus.Logger) *Transmission {
	t := &Transmission{
		cfg:     cfg,
		logger:  logger,
		sampler: sample.NewWithSource(cfg.SampleSource),
	}
	t.respond = t.accountResponses(cfg.ResponseCallback)

	t.http = newHTTPSender(cfg, t.respond, logger)
	t.http.onBatch = func() { t.stats.batchesSent.Add(1) }
	t.disp = newDispatcher(cfg, t.http.sendCut, logger)
	return t
}

// accountResponses wraps the user callback with outcome accounting. A nil
// callback still gets its outcomes counted, then discarded.
func (t *Transmission) accountResponses(cb func([]types.Response)) func([]types.Response) {
	return func(rs []types.Response) {
		for i := range rs {
			r := &rs[i]
			switch {
			case r.Err == nil:
				t.stats.eventsSent.Add(1)
			case errors.KindOf(r.Err) == errors.KindEncoding:
				t.stats.encodeFailures.Add(1)
			case errors.KindOf(r.Err) == errors.KindTransport,
				errors.KindOf(r.Err) == errors.KindTimeout:
				t.stats.transportErrors.Add(1)
			}
		}
		if cb != nil {
			cb(rs)
		}
	}
}

// Start marks the transmission as running. Events sent before Start are
// rejected with a shutdown outcome.
func (t *Transmission) Start() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.isRunning {
		return errors.Config("start", "transmission already running")
	}
	t.isRunning = true
	t.logger.WithFields(logrus.Fields{
		"api_host":               t.cfg.APIHost,
		"batch_size_trigger":     t.cfg.BatchSizeTrigger,
		"batch_time_trigger":     t.cfg.BatchTimeTrigger.String(),
		"max_concurrent_batches": t.cfg.MaxConcurrentBatches,
		"pending_work_capacity":  t.cfg.PendingWorkCapacity,
	}).Debug("Transmission started")
	return nil
}

// SendEvent runs the sampling gate and enqueues the event. Dropped events
// produce a sampling outcome; nothing is reported to the caller directly.
func (t *Transmission) SendEvent(e *types.Event) {
	if !t.sampler.ShouldKeep(e.SampleRate) {
		t.stats.sampledOut.Add(1)
		metrics.RecordDrop(string(errors.KindSampling))
		t.respond([]types.Response{{Err: errors.ErrSampled, Metadata: e.Metadata}})
		return
	}
	t.SendPresampledEvent(e)
}

// SendPresampledEvent enqueues the event, bypassing the sampling gate.
// Queue overflow and post-shutdown submissions become outcomes, never
// errors; intake does not block unless BlockOnSend is configured.
func (t *Transmission) SendPresampledEvent(e *types.Event) {
	t.mutex.RLock()
	running := t.isRunning
	t.mutex.RUnlock()
	if !running {
		t.respond([]types.Response{{Err: errors.ErrStopped, Metadata: e.Metadata}})
		return
	}

	if err := t.disp.Enqueue(e); err != nil {
		switch errors.KindOf(err) {
		case errors.KindOverflow:
			t.stats.overflowed.Add(1)
			metrics.RecordDrop(string(errors.KindOverflow))
		case errors.KindShutdown:
			metrics.RecordDrop(string(errors.KindShutdown))
		}
		t.respond([]types.Response{{Err: err, Metadata: e.Metadata}})
		return
	}
	t.stats.enqueued.Add(1)
}

// Flush blocks until everything submitted so far has drained and no batch
// is in flight, or until ctx is done.
func (t *Transmission) Flush(ctx context.Context) error {
	select {
	case <-t.disp.Flush():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains pending work and shuts the dispatcher down. Events sent
// after Stop get a shutdown outcome.
func (t *Transmission) Stop() error {
	t.mutex.Lock()
	if !t.isRunning {
		t.mutex.Unlock()
		return nil
	}
	t.isRunning = false
	t.mutex.Unlock()

	t.disp.Stop()
	t.http.client.CloseIdleConnections()
	t.logger.Debug("Transmission stopped")
	return nil
}

// Stats returns a snapshot of transmission counters.
func (t *Transmission) Stats() types.SenderStats {
	return types.SenderStats{
		Enqueued:        t.stats.enqueued.Load(),
		SampledOut:      t.stats.sampledOut.Load(),
		Overflowed:      t.stats.overflowed.Load(),
		BatchesSent:     t.stats.batchesSent.Load(),
		EventsSent:      t.stats.eventsSent.Load(),
		EncodeFailures:  t.stats.encodeFailures.Load(),
		TransportErrors: t.stats.transportErrors.Load(),
	}
}

// DiscardSender drops every event. It backs the "null" transmission kind
// and disabled configurations.
type DiscardSender struct{}

func (*DiscardSender) Start() error                     { return nil }
func (*DiscardSender) SendEvent(*types.Event)           {}
func (*DiscardSender) SendPresampledEvent(*types.Event) {}
func (*DiscardSender) Flush(context.Context) error      { return nil }
func (*DiscardSender) Stop() error                      { return nil }

// MockSender records every event it is handed. Tests assert against the
// recorded slice; a settable start error exercises construction failures.
type MockSender struct {
	mu sync.Mutex

	// StartErr, when set, is returned by Start.
	StartErr error

	started bool
	events  []*types.Event
	flushes int
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.started = true
	return nil
}

func (m *MockSender) SendEvent(e *types.Event) {
	m.SendPresampledEvent(e)
}

func (m *MockSender) SendPresampledEvent(e *types.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *MockSender) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *MockSender) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *MockSender) Events() []*types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Flushes returns how many times Flush was called.
func (m *MockSender) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Started reports whether the sender is between Start and Stop.
func (m *MockSender) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// WriterSender prints one JSON line per event. It bypasses the sampling
// gate entirely: SendEvent and SendPresampledEvent behave identically.
// It backs the "console" and "stdout" transmission kinds.
type WriterSender struct {
	mu      sync.Mutex
	w       io.Writer
	respond func([]types.Response)
}

// writerLine is the printed shape: the destination dataset plus the wire
// fields of the event.
type writerLine struct {
	Dataset    string                 `json:"dataset"`
	Time       string                 `json:"time"`
	SampleRate uint                   `json:"samplerate,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

func NewWriterSender(w io.Writer, cfg types.Config) *WriterSender {
	return &WriterSender{
		w:       w,
		respond: cfg.ResponseCallback,
	}
}

func (s *WriterSender) Start() error { return nil }

func (s *WriterSender) SendEvent(e *types.Event) {
	s.SendPresampledEvent(e)
}

func (s *WriterSender) SendPresampledEvent(e *types.Event) {
	line, err := json.Marshal(writerLine{
		Dataset:    e.Dataset,
		Time:       e.Timestamp.Format(time.RFC3339Nano),
		SampleRate: wireSampleRate(e.SampleRate),
		Data:       e.Data,
	})

	s.mu.Lock()
	if err == nil {
		fmt.Fprintf(s.w, "%s\n", line)
	}
	s.mu.Unlock()

	if s.respond != nil {
		r := types.Response{Metadata: e.Metadata}
		if err != nil {
			r.Err = errors.Encoding(err)
		}
		s.respond([]types.Response{r})
	}
}

func (s *WriterSender) Flush(context.Context) error { return nil }
func (s *WriterSender) Stop() error                 { return nil }
