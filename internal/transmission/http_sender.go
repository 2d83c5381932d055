package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/productboard/libhoney-go/internal/metrics"
	"github.com/productboard/libhoney-go/pkg/errors"
	"github.com/productboard/libhoney-go/pkg/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxErrorBodyBytes bounds how much of a failed response body is retained
// on the outcome.
const maxErrorBodyBytes = 4096

// httpSender ships batches over HTTP and fans the per-event response array
// back out into outcomes.
//
// One httpSender is shared by all worker slots; it holds no per-batch
// state. Partitions produced from a single cut are sent sequentially by
// the slot that owns them, so a slot never has more than one request
// outstanding.
type httpSender struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	altUserAgent bool
	respond      func([]types.Response)
	logger       *logrus.Logger
	tracer       trace.Tracer

	// onBatch, when set, is called once per POST attempted.
	onBatch func()
}

func newHTTPSender(cfg types.Config, respond func([]types.Response), logger *logrus.Logger) *httpSender {
	// Connection limits sized for MaxConcurrentBatches outstanding
	// requests; without MaxConnsPerHost the pool can grow unbounded
	// under error churn.
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   cfg.MaxConcurrentBatches,
			MaxConnsPerHost:       cfg.MaxConcurrentBatches * 2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return &httpSender{
		client:       client,
		timeout:      cfg.Timeout,
		userAgent:    buildUserAgent(cfg.UserAgentAddition),
		altUserAgent: cfg.AltUserAgent,
		respond:      respond,
		logger:       logger,
		tracer:       otel.Tracer("github.com/productboard/libhoney-go/internal/transmission"),
	}
}

// sendCut partitions one cut prefix by destination and sends the resulting
// batches sequentially. This is the dispatcher's send hook.
func (s *httpSender) sendCut(events []*types.Event) {
	for _, b := range buildBatches(events) {
		s.sendBatch(b)
	}
}

// sendBatch performs one POST for one partition and emits exactly one
// outcome per event of the partition, whatever happens on the wire.
func (s *httpSender) sendBatch(b *types.Batch) {
	body, encodeErrs, numEncoded := encodeBatch(b)

	// Nothing encoded: the partition is not sent; every event carries
	// its own encode failure.
	if numEncoded == 0 {
		out := make([]types.Response, 0, len(b.Events))
		for i, e := range b.Events {
			metrics.RecordDrop(string(errors.KindEncoding))
			out = append(out, types.Response{
				Err:      errors.Encoding(encodeErrs[i]),
				Metadata: e.Metadata,
			})
		}
		s.respond(out)
		return
	}

	endpoint, err := url.JoinPath(b.APIHost, "/1/batch", url.PathEscape(b.Dataset))
	if err != nil {
		s.respondFailure(b, encodeErrs, errors.Transport("resolve", err), 0, nil, 0, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "transmission.send", trace.WithAttributes(
		attribute.String("batch.id", b.ID),
		attribute.String("dataset", b.Dataset),
		attribute.Int("batch.size", numEncoded),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		s.respondFailure(b, encodeErrs, errors.Transport("request", err), 0, nil, 0, false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Honeycomb-Team", b.WriteKey)
	if s.altUserAgent {
		req.Header.Set("X-Honeycomb-UserAgent", s.userAgent)
	} else {
		req.Header.Set("User-Agent", s.userAgent)
	}

	if s.onBatch != nil {
		s.onBatch()
	}
	start := time.Now()
	resp, err := s.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		timeout := isTimeout(ctx, err)
		var sendErr *errors.ShipperError
		status := "error"
		if timeout {
			sendErr = errors.Timeout("send", err)
			status = "timeout"
		} else {
			sendErr = errors.Transport("send", err)
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"batch_id": b.ID,
			"dataset":  b.Dataset,
			"timeout":  timeout,
		}).Warn("Batch request failed")
		metrics.RecordBatch(status, numEncoded, duration)
		s.respondFailure(b, encodeErrs, sendErr, 0, nil, duration, timeout)
		return
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		s.logger.WithFields(logrus.Fields{
			"batch_id":    b.ID,
			"dataset":     b.Dataset,
			"status_code": resp.StatusCode,
		}).Warn("Batch request rejected")
		metrics.RecordBatch(strconv.Itoa(resp.StatusCode), numEncoded, duration)
		s.respondFailure(b, encodeErrs, errors.TransportStatus("send", resp.StatusCode), resp.StatusCode, respBody, duration, false)
		return
	}

	var eventResponses []batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&eventResponses); err != nil {
		metrics.RecordBatch("malformed", numEncoded, duration)
		s.respondFailure(b, encodeErrs, errors.Transport("decode", err), resp.StatusCode, nil, duration, false)
		return
	}

	metrics.RecordBatch("2xx", numEncoded, duration)
	s.logger.WithFields(logrus.Fields{
		"batch_id":    b.ID,
		"dataset":     b.Dataset,
		"events":      numEncoded,
		"duration_ms": duration.Milliseconds(),
	}).Debug("Batch sent")

	// The response array is parallel to the encoded subset, so a second
	// index walks it while encode-failed events keep their own outcome.
	out := make([]types.Response, 0, len(b.Events))
	next := 0
	for i, e := range b.Events {
		if encodeErrs[i] != nil {
			metrics.RecordDrop(string(errors.KindEncoding))
			out = append(out, types.Response{
				Err:      errors.Encoding(encodeErrs[i]),
				Duration: duration,
				Metadata: e.Metadata,
			})
			continue
		}
		r := types.Response{
			Duration: duration,
			Metadata: e.Metadata,
		}
		if next < len(eventResponses) {
			er := eventResponses[next]
			next++
			r.StatusCode = er.Status
			if er.Err != "" {
				r.Err = stderrors.New(er.Err)
			}
		} else {
			r.StatusCode = resp.StatusCode
			r.Err = errors.Transport("decode", stderrors.New("batch response array shorter than request"))
		}
		out = append(out, r)
	}
	s.respond(out)
}

// respondFailure emits one outcome per event of a partition whose request
// failed as a whole. Encode-failed events still carry their encode error.
func (s *httpSender) respondFailure(b *types.Batch, encodeErrs []error, sendErr error, statusCode int, body []byte, duration time.Duration, timeout bool) {
	out := make([]types.Response, 0, len(b.Events))
	for i, e := range b.Events {
		if encodeErrs[i] != nil {
			metrics.RecordDrop(string(errors.KindEncoding))
			out = append(out, types.Response{
				Err:      errors.Encoding(encodeErrs[i]),
				Duration: duration,
				Metadata: e.Metadata,
			})
			continue
		}
		out = append(out, types.Response{
			Err:        sendErr,
			StatusCode: statusCode,
			Body:       body,
			Duration:   duration,
			Timeout:    timeout,
			Metadata:   e.Metadata,
		})
	}
	s.respond(out)
}

// isTimeout classifies a transport error as a deadline expiry.
func isTimeout(ctx context.Context, err error) bool {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}
