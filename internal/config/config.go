// Package config loads, defaults, and validates shipper configuration.
//
// Load assembles configuration in two layers, the later one winning:
//  1. a YAML file (optional)
//  2. LIBHONEY_* environment variables
//
// Defaults are applied to whatever is still unset, then the whole result is
// validated. Library users normally construct types.Config directly and
// only go through ApplyDefaults and Validate.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/productboard/libhoney-go/pkg/errors"
	"github.com/productboard/libhoney-go/pkg/types"

	"gopkg.in/yaml.v2"
)

// Default configuration values.
const (
	DefaultAPIHost              = "https://api.honeycomb.io/"
	DefaultSampleRate           = 1
	DefaultBatchSizeTrigger     = 50
	DefaultBatchTimeTrigger     = 100 * time.Millisecond
	DefaultMaxConcurrentBatches = 10
	DefaultPendingWorkCapacity  = 10000
	DefaultMaxResponseQueueSize = 1000
	DefaultTimeout              = 60 * time.Second

	// UnknownDataset is filled in for non-classic write keys that leave
	// the dataset empty.
	UnknownDataset = "unknown_dataset"

	classicKeyLength = 32
)

// Load reads a YAML configuration file, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*types.Config, error) {
	cfg := &types.Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Config("load", fmt.Sprintf("failed to read config file %s: %v", path, err))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Config("load", fmt.Sprintf("failed to parse config file %s: %v", path, err))
		}
	}

	applyEnvironmentOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with the documented defaults and coerces
// out-of-range values that would otherwise prevent progress.
func ApplyDefaults(cfg *types.Config) {
	if cfg.APIHost == "" {
		cfg.APIHost = DefaultAPIHost
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BatchSizeTrigger == 0 {
		cfg.BatchSizeTrigger = DefaultBatchSizeTrigger
	}
	// A size trigger below 1 would never cut a batch.
	if cfg.BatchSizeTrigger < 1 {
		cfg.BatchSizeTrigger = 1
	}
	if cfg.BatchTimeTrigger == 0 {
		cfg.BatchTimeTrigger = DefaultBatchTimeTrigger
	}
	if cfg.MaxConcurrentBatches == 0 {
		cfg.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	if cfg.PendingWorkCapacity == 0 {
		cfg.PendingWorkCapacity = DefaultPendingWorkCapacity
	}
	if cfg.MaxResponseQueueSize == 0 {
		cfg.MaxResponseQueueSize = DefaultMaxResponseQueueSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dataset == "" && !IsClassicKey(cfg.WriteKey) {
		cfg.Dataset = UnknownDataset
	}
}

// applyEnvironmentOverrides overlays LIBHONEY_* environment variables.
func applyEnvironmentOverrides(cfg *types.Config) {
	cfg.APIHost = getEnvString("LIBHONEY_API_HOST", cfg.APIHost)
	cfg.WriteKey = getEnvString("LIBHONEY_WRITE_KEY", cfg.WriteKey)
	cfg.Dataset = getEnvString("LIBHONEY_DATASET", cfg.Dataset)
	cfg.Transmission = getEnvString("LIBHONEY_TRANSMISSION", cfg.Transmission)

	if v := getEnvInt("LIBHONEY_SAMPLE_RATE", 0); v > 0 {
		cfg.SampleRate = uint(v)
	}
	if v := getEnvInt("LIBHONEY_BATCH_SIZE_TRIGGER", 0); v > 0 {
		cfg.BatchSizeTrigger = v
	}
	if v := getEnvInt("LIBHONEY_MAX_CONCURRENT_BATCHES", 0); v > 0 {
		cfg.MaxConcurrentBatches = v
	}
	if v := getEnvInt("LIBHONEY_PENDING_WORK_CAPACITY", 0); v > 0 {
		cfg.PendingWorkCapacity = v
	}
	if v := getEnvDuration("LIBHONEY_BATCH_TIME_TRIGGER", 0); v > 0 {
		cfg.BatchTimeTrigger = v
	}
	if v := getEnvDuration("LIBHONEY_TIMEOUT", 0); v > 0 {
		cfg.Timeout = v
	}
	if v := os.Getenv("LIBHONEY_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Disabled = b
		}
	}
}

// Validate checks the assembled configuration. Validation failures abort
// client construction.
func Validate(cfg *types.Config) error {
	if cfg.WriteKey == "" {
		return errors.Config("validate", "write_key is required")
	}
	if cfg.APIHost == "" {
		return errors.Config("validate", "api_host is required")
	}
	if u, err := url.Parse(cfg.APIHost); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Config("validate", fmt.Sprintf("api_host %q is not an absolute URL", cfg.APIHost))
	}
	if IsClassicKey(cfg.WriteKey) && cfg.Dataset == "" {
		return errors.Config("validate", "dataset is required for classic write keys")
	}
	if cfg.Dataset == "" {
		return errors.Config("validate", "dataset must not be empty")
	}
	if cfg.MaxConcurrentBatches < 1 {
		return errors.Config("validate", "max_concurrent_batches must be at least 1")
	}
	if cfg.PendingWorkCapacity < 1 {
		return errors.Config("validate", "pending_work_capacity must be at least 1")
	}
	if cfg.Timeout <= 0 {
		return errors.Config("validate", "timeout must be positive")
	}
	switch cfg.Transmission {
	case "", "base", "null", "mock", "console", "stdout", "writer":
	default:
		return errors.Config("validate", fmt.Sprintf("unknown transmission kind %q", cfg.Transmission))
	}
	return nil
}

// IsClassicKey reports whether the write key uses the classic format,
// which requires an explicit dataset.
func IsClassicKey(key string) bool {
	return len(key) == classicKeyLength
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
