// Package libhoney ships validated telemetry events to a Honeycomb-style
// batch ingest endpoint.
//
// The client accepts events that have already been validated and
// normalized, queues them in a bounded in-memory buffer, cuts batches on a
// size or time trigger, and POSTs each destination's batch as one JSON
// array. Every submitted event yields exactly one outcome on the response
// channel (or through a custom response callback): dropped by sampling,
// dropped on overflow, failed to encode, or the per-event result from the
// ingest service.
//
// Typical use:
//
//	client, err := libhoney.NewClient(types.Config{WriteKey: key, Dataset: "prod"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.SendEvent(&types.Event{Data: map[string]interface{}{"method": "GET"}})
//	client.Flush(ctx)
package libhoney

import (
	"context"
	"sync"
	"time"

	"github.com/productboard/libhoney-go/internal/config"
	"github.com/productboard/libhoney-go/internal/metrics"
	"github.com/productboard/libhoney-go/internal/transmission"
	"github.com/productboard/libhoney-go/pkg/errors"
	"github.com/productboard/libhoney-go/pkg/types"

	"github.com/sirupsen/logrus"
)

// Version identifies this library.
const Version = transmission.Version

// Client is the top-level shipper. It owns the active sender and the
// bounded response channel, and implements the flush-as-drain-and-swap
// protocol: Flush detaches the current sender, installs a fresh one for
// subsequent events, and waits for the detached sender to drain.
//
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	mu        sync.Mutex
	cfg       types.Config
	logger    *logrus.Logger
	sender    types.Sender
	responses chan types.Response
	closed    bool

	// responsesClosed is set once the response channel has been closed,
	// so late shutdown outcomes are dropped instead of panicking.
	responsesClosed bool
}

// NewClient validates the configuration, applies defaults, and starts the
// configured transmission. Configuration errors abort construction.
func NewClient(cfg types.Config) (*Client, error) {
	config.ApplyDefaults(&cfg)
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.ErrorLevel)
	}
	cfg.Logger = logger

	c := &Client{
		logger:    logger,
		responses: make(chan types.Response, cfg.MaxResponseQueueSize),
	}
	if cfg.ResponseCallback == nil {
		cfg.ResponseCallback = c.enqueueResponses
	}
	c.cfg = cfg

	sender, err := c.newSender()
	if err != nil {
		return nil, err
	}
	c.sender = sender

	logger.WithFields(logrus.Fields{
		"api_host": cfg.APIHost,
		"dataset":  cfg.Dataset,
		"version":  Version,
	}).Debug("Client initialized")
	return c, nil
}

// newSender builds and starts a sender for the current configuration.
func (c *Client) newSender() (types.Sender, error) {
	sender, err := transmission.New(c.cfg)
	if err != nil {
		return nil, err
	}
	if err := sender.Start(); err != nil {
		return nil, err
	}
	return sender, nil
}

// SendEvent submits a validated event through the sampling gate. Missing
// destination fields are filled from the client configuration; a zero
// timestamp becomes the current time. The call never blocks (unless
// BlockOnSend is configured) and never fails: the result arrives as an
// outcome.
func (c *Client) SendEvent(e *types.Event) {
	c.prepare(e)
	c.currentSender().SendEvent(e)
}

// SendPresampledEvent submits an event that has already passed sampling
// upstream; the gate is bypassed and the recorded SampleRate is shipped
// as-is.
func (c *Client) SendPresampledEvent(e *types.Event) {
	c.prepare(e)
	c.currentSender().SendPresampledEvent(e)
}

// prepare fills per-event destination fields from the client configuration
// where the validator left them empty.
func (c *Client) prepare(e *types.Event) {
	if e.APIHost == "" {
		e.APIHost = c.cfg.APIHost
	}
	if e.WriteKey == "" {
		e.WriteKey = c.cfg.WriteKey
	}
	if e.Dataset == "" {
		e.Dataset = c.cfg.Dataset
	}
	if e.SampleRate == 0 {
		e.SampleRate = c.cfg.SampleRate
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
}

func (c *Client) currentSender() types.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sender
}

// Flush waits for everything pending at the instant of the call: the
// active sender is detached and replaced with a fresh one, so events
// submitted after Flush land on the new sender while the caller blocks on
// exactly the work that was already accepted.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrStopped
	}
	detached := c.sender
	fresh, err := c.newSender()
	if err != nil {
		// Construction from an already-validated configuration does not
		// fail in practice; keep the current sender and report.
		c.mu.Unlock()
		c.logger.WithError(err).Error("Failed to build replacement sender; flush aborted")
		return err
	}
	c.sender = fresh
	c.mu.Unlock()

	flushErr := detached.Flush(ctx)
	if err := detached.Stop(); err != nil {
		c.logger.WithError(err).Warn("Detached sender did not stop cleanly")
	}
	return flushErr
}

// Close drains the active sender and shuts the client down. Events sent
// after Close receive a shutdown outcome; the response channel is closed
// once no more outcomes can arrive.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sender := c.sender
	c.mu.Unlock()

	err := sender.Stop()

	c.mu.Lock()
	c.responsesClosed = true
	c.mu.Unlock()
	close(c.responses)
	return err
}

// Stats returns the active sender's counters when it is the base
// transmission; alternative sinks report zeros. Note that Flush installs
// a fresh sender, which starts its counters over.
func (c *Client) Stats() types.SenderStats {
	if t, ok := c.currentSender().(*transmission.Transmission); ok {
		return t.Stats()
	}
	return types.SenderStats{}
}

// Responses exposes the bounded channel fed by the default response
// callback: one Response per submitted event. When the channel is full,
// outcomes are dropped unless BlockOnResponse is configured. Installing a
// custom ResponseCallback leaves this channel empty.
func (c *Client) Responses() <-chan types.Response {
	return c.responses
}

// enqueueResponses is the default response callback: block-or-drop onto
// the bounded response channel.
func (c *Client) enqueueResponses(rs []types.Response) {
	c.mu.Lock()
	done := c.responsesClosed
	c.mu.Unlock()
	if done {
		// Outcomes for events sent after Close have nowhere to go.
		metrics.ResponsesDroppedTotal.Add(float64(len(rs)))
		return
	}

	for _, r := range rs {
		if c.cfg.BlockOnResponse {
			c.responses <- r
			continue
		}
		select {
		case c.responses <- r:
		default:
			metrics.ResponsesDroppedTotal.Inc()
		}
	}
}
