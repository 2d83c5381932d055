package types

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config contains all configuration recognized by the client and the
// transmission subsystem.
//
// All duration fields use Go duration semantics. Zero values are replaced
// with defaults during client construction; see internal/config.
type Config struct {
	// APIHost is the base URL events are shipped to. Trailing slashes
	// are tolerated. Default: https://api.honeycomb.io/
	APIHost string `yaml:"api_host"`

	// WriteKey authenticates with the ingest service. Required. A key of
	// exactly 32 characters is treated as classic and requires Dataset
	// to be set explicitly.
	WriteKey string `yaml:"write_key"`

	// Dataset is the destination dataset. Required for classic write
	// keys; filled with "unknown_dataset" otherwise when empty.
	Dataset string `yaml:"dataset"`

	// SampleRate admits each event with probability 1/SampleRate.
	// Default 1: send everything.
	SampleRate uint `yaml:"sample_rate"`

	// BatchSizeTrigger is the maximum number of events removed from the
	// queue per cut. Default 50, floor 1.
	BatchSizeTrigger int `yaml:"batch_size_trigger"`

	// BatchTimeTrigger is the maximum delay before a non-full batch is
	// cut. Default 100ms.
	BatchTimeTrigger time.Duration `yaml:"batch_time_trigger"`

	// MaxConcurrentBatches caps the number of batch slots sending in
	// parallel. Default 10.
	MaxConcurrentBatches int `yaml:"max_concurrent_batches"`

	// PendingWorkCapacity caps the intake queue. Events arriving while
	// the queue is full are dropped with an overflow outcome, unless
	// BlockOnSend is set. Default 10000.
	PendingWorkCapacity int `yaml:"pending_work_capacity"`

	// MaxResponseQueueSize caps the response channel fed by the default
	// response callback. Default 1000.
	MaxResponseQueueSize int `yaml:"max_response_queue_size"`

	// Timeout is the per-request deadline for one batch POST. The
	// request is aborted on expiry. Default 60s.
	Timeout time.Duration `yaml:"timeout"`

	// BlockOnSend makes intake wait for queue space instead of dropping
	// on overflow.
	BlockOnSend bool `yaml:"block_on_send"`

	// BlockOnResponse makes the default response callback wait for a
	// reader instead of dropping outcomes when the response channel is
	// full.
	BlockOnResponse bool `yaml:"block_on_response"`

	// Disabled replaces the transmission with a discarding sink.
	Disabled bool `yaml:"disabled"`

	// Transmission selects the sender implementation: "base" (default),
	// "null", "mock", "console", "stdout", or the deprecated alias
	// "writer". An unknown value is a construction error.
	Transmission string `yaml:"transmission"`

	// UserAgentAddition is trimmed and appended to the base user agent.
	UserAgentAddition string `yaml:"user_agent_addition"`

	// AltUserAgent sends the user agent under X-Honeycomb-UserAgent
	// instead of User-Agent, for embeddings (js/wasm) where the platform
	// refuses a custom User-Agent header.
	AltUserAgent bool `yaml:"alt_user_agent"`

	// ResponseCallback receives one slice of outcomes per completed
	// partition, invoked from sender worker contexts. When nil, the
	// client installs a callback feeding its bounded response channel.
	// May be invoked concurrently when MaxConcurrentBatches > 1.
	ResponseCallback func([]Response) `yaml:"-"`

	// SampleSource overrides the sampling gate's uniform random source.
	// Intended for tests.
	SampleSource func() float64 `yaml:"-"`

	// Logger receives structured diagnostics. When nil a quiet logger
	// (error level) is used.
	Logger *logrus.Logger `yaml:"-"`
}
