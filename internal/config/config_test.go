package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/productboard/libhoney-go/pkg/errors"
	"github.com/productboard/libhoney-go/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApplyDefaults tests that unset fields get documented defaults
func TestApplyDefaults(t *testing.T) {
	cfg := &types.Config{WriteKey: "wk"}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultAPIHost, cfg.APIHost)
	assert.Equal(t, uint(DefaultSampleRate), cfg.SampleRate)
	assert.Equal(t, DefaultBatchSizeTrigger, cfg.BatchSizeTrigger)
	assert.Equal(t, DefaultBatchTimeTrigger, cfg.BatchTimeTrigger)
	assert.Equal(t, DefaultMaxConcurrentBatches, cfg.MaxConcurrentBatches)
	assert.Equal(t, DefaultPendingWorkCapacity, cfg.PendingWorkCapacity)
	assert.Equal(t, DefaultMaxResponseQueueSize, cfg.MaxResponseQueueSize)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, UnknownDataset, cfg.Dataset, "non-classic key without dataset is auto-filled")
}

// TestApplyDefaults_BatchSizeFloor tests that a negative size trigger is coerced to 1
func TestApplyDefaults_BatchSizeFloor(t *testing.T) {
	cfg := &types.Config{WriteKey: "wk", BatchSizeTrigger: -3}
	ApplyDefaults(cfg)
	assert.Equal(t, 1, cfg.BatchSizeTrigger)
}

// TestApplyDefaults_ClassicKeyDatasetNotFilled tests classic keys keep an empty dataset
func TestApplyDefaults_ClassicKeyDatasetNotFilled(t *testing.T) {
	classic := "abcdefghijklmnopqrstuvwxyz123456" // 32 chars
	require.True(t, IsClassicKey(classic))

	cfg := &types.Config{WriteKey: classic}
	ApplyDefaults(cfg)
	assert.Empty(t, cfg.Dataset, "classic keys must not get unknown_dataset")
}

// TestValidate tests validation rules
func TestValidate(t *testing.T) {
	classic := "abcdefghijklmnopqrstuvwxyz123456"

	tests := []struct {
		name    string
		mutate  func(*types.Config)
		wantErr bool
	}{
		{"valid", func(c *types.Config) {}, false},
		{"missing write key", func(c *types.Config) { c.WriteKey = "" }, true},
		{"classic key without dataset", func(c *types.Config) { c.WriteKey = classic; c.Dataset = "" }, true},
		{"classic key with dataset", func(c *types.Config) { c.WriteKey = classic }, false},
		{"relative api host", func(c *types.Config) { c.APIHost = "/relative" }, true},
		{"unknown transmission", func(c *types.Config) { c.Transmission = "carrier-pigeon" }, true},
		{"known transmission null", func(c *types.Config) { c.Transmission = "null" }, false},
		{"deprecated writer alias", func(c *types.Config) { c.Transmission = "writer" }, false},
		{"negative concurrency", func(c *types.Config) { c.MaxConcurrentBatches = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &types.Config{WriteKey: "wk", Dataset: "d"}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindConfig, errors.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestLoad_YAMLFile tests loading configuration from a YAML file
func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libhoney.yaml")
	data := []byte(`
write_key: file-key
dataset: file-dataset
batch_size_trigger: 7
batch_time_trigger: 250ms
timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.WriteKey)
	assert.Equal(t, "file-dataset", cfg.Dataset)
	assert.Equal(t, 7, cfg.BatchSizeTrigger)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchTimeTrigger)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, DefaultAPIHost, cfg.APIHost, "defaults fill the rest")
}

// TestLoad_EnvironmentOverrides tests that LIBHONEY_* variables win over the file
func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libhoney.yaml")
	require.NoError(t, os.WriteFile(path, []byte("write_key: file-key\ndataset: d\n"), 0o644))

	t.Setenv("LIBHONEY_WRITE_KEY", "env-key")
	t.Setenv("LIBHONEY_BATCH_SIZE_TRIGGER", "3")
	t.Setenv("LIBHONEY_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.WriteKey)
	assert.Equal(t, 3, cfg.BatchSizeTrigger)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
}

// TestLoad_MissingFile tests the error for an unreadable file
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
}

// TestIsClassicKey tests the classic key length rule
func TestIsClassicKey(t *testing.T) {
	assert.True(t, IsClassicKey("abcdefghijklmnopqrstuvwxyz123456"))
	assert.False(t, IsClassicKey("short"))
	assert.False(t, IsClassicKey(""))
}
