package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSentinelMessages tests that the outcome contract strings are stable
func TestSentinelMessages(t *testing.T) {
	assert.Equal(t, "event dropped due to sampling", ErrSampled.Error())
	assert.Equal(t, "queue overflow", ErrOverflow.Error())
}

// TestKindOf tests kind extraction through wrap chains
func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSampling, KindOf(ErrSampled))
	assert.Equal(t, KindOverflow, KindOf(ErrOverflow))
	assert.Equal(t, KindEncoding, KindOf(Encoding(stderrors.New("boom"))))
	assert.Equal(t, KindTransport, KindOf(Transport("send", stderrors.New("refused"))))
	assert.Equal(t, KindTimeout, KindOf(Timeout("send", stderrors.New("deadline"))))
	assert.Equal(t, Kind(""), KindOf(stderrors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))

	wrapped := fmt.Errorf("outer: %w", ErrOverflow)
	assert.Equal(t, KindOverflow, KindOf(wrapped))
}

// TestTimeoutClassification tests the Timeout accessor and IsTimeout helper
func TestTimeoutClassification(t *testing.T) {
	te := Timeout("send", stderrors.New("context deadline exceeded"))
	assert.True(t, te.Timeout())
	assert.True(t, IsTimeout(te))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", te)))

	assert.False(t, Transport("send", stderrors.New("refused")).Timeout())
	assert.False(t, IsTimeout(ErrOverflow))
	assert.False(t, IsTimeout(stderrors.New("plain")))
}

// TestUnwrap tests that causes stay reachable
func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Transport("send", cause)
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
}

// TestTransportStatus tests the non-2xx error message
func TestTransportStatus(t *testing.T) {
	err := TransportStatus("send", 503)
	assert.Equal(t, KindTransport, err.Kind)
	assert.Contains(t, err.Error(), "503")
}
