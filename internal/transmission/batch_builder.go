package transmission

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/productboard/libhoney-go/pkg/types"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// wireEvent is the shape of one event in a batch body. Fields the ingest
// service treats as optional are omitted when absent; a sample rate of 1 is
// the wire default and is not sent.
type wireEvent struct {
	Time       string                 `json:"time"`
	SampleRate uint                   `json:"samplerate,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// batchResponse is one element of the ingest service's per-event response
// array, parallel to the successfully encoded events of the request body.
type batchResponse struct {
	Status int    `json:"status"`
	Err    string `json:"err"`
}

// buildBatches partitions a cut prefix by destination triple. Order within
// a partition matches the order of the input prefix; order across
// partitions follows first appearance, which keeps test output stable.
// Each batch gets a fresh ID for log and trace correlation.
func buildBatches(events []*types.Event) []*types.Batch {
	batches := make(map[uint64]*types.Batch)
	order := make([]uint64, 0, 1)

	for _, e := range events {
		key := destinationKey(e)
		b, ok := batches[key]
		if !ok {
			b = &types.Batch{
				ID:       uuid.NewString(),
				APIHost:  e.APIHost,
				WriteKey: e.WriteKey,
				Dataset:  e.Dataset,
			}
			batches[key] = b
			order = append(order, key)
		}
		b.Events = append(b.Events, e)
	}

	out := make([]*types.Batch, 0, len(order))
	for _, key := range order {
		out = append(out, batches[key])
	}
	return out
}

// destinationKey hashes the destination triple. The separator byte keeps
// adjacent fields from running together.
func destinationKey(e *types.Event) uint64 {
	h := xxhash.New()
	h.WriteString(e.APIHost)
	h.Write([]byte{0x1f})
	h.WriteString(e.WriteKey)
	h.Write([]byte{0x1f})
	h.WriteString(e.Dataset)
	return h.Sum64()
}

// encodeBatch serializes a batch into a JSON array body.
//
// Events that fail to serialize are omitted from the body and recorded in
// the returned error slice (parallel to b.Events, nil for encoded events);
// the rest of the batch proceeds. numEncoded counts the events present in
// the body, which is also the length of the response array the ingest
// service will return.
func encodeBatch(b *types.Batch) (body []byte, encodeErrs []error, numEncoded int) {
	encodeErrs = make([]error, len(b.Events))

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range b.Events {
		payload, err := json.Marshal(wireEvent{
			Time:       e.Timestamp.Format(time.RFC3339Nano),
			SampleRate: wireSampleRate(e.SampleRate),
			Data:       e.Data,
		})
		if err != nil {
			encodeErrs[i] = err
			continue
		}
		if numEncoded > 0 {
			buf.WriteByte(',')
		}
		buf.Write(payload)
		numEncoded++
	}
	buf.WriteByte(']')

	return buf.Bytes(), encodeErrs, numEncoded
}

// wireSampleRate maps the default rate to the wire's omitted value.
func wireSampleRate(rate uint) uint {
	if rate <= 1 {
		return 0
	}
	return rate
}
