package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestPublishBatchEncodesJSON(t *testing.T) {
	w := &captureWriter{}
	p, err := NewProducer(WithWriter(w), WithCompression("none"))
	require.NoError(t, err)

	err = p.PublishBatch(context.Background(), "summaries", []Message{
		{Key: []byte("SPY"), Value: map[string]any{"ticker": "SPY", "proba_ens": 0.61}},
		{Key: []byte("QQQ"), Value: []byte(`{"ticker":"QQQ"}`)},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "summaries", w.msgs[0].Topic)
	assert.Equal(t, []byte("SPY"), w.msgs[0].Key)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 0.61, got["proba_ens"])
	assert.JSONEq(t, `{"ticker":"QQQ"}`, string(w.msgs[1].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishBatchCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &captureWriter{}
	p, err := NewProducer(WithWriter(w), WithCompression("gzip"), WithMetrics(reg))
	require.NoError(t, err)

	require.NoError(t, p.PublishBatch(context.Background(), "summaries", []Message{{Key: []byte("SPY"), Value: "a"}, {Key: []byte("QQQ"), Value: "b"}}))
	w.err = errors.New("broker down")
	err = p.PublishBatch(context.Background(), "summaries", []Message{{Key: []byte("SPY"), Value: "x"}})
	assert.ErrorContains(t, err, "broker down")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("summaries", "gzip", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("summaries", "gzip", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.bytes.WithLabelValues("summaries")))
}

func TestPublishBatchEmpty(t *testing.T) {
	w := &captureWriter{}
	p, err := NewProducer(WithWriter(w))
	require.NoError(t, err)
	require.NoError(t, p.PublishBatch(context.Background(), "summaries", nil))
	assert.Empty(t, w.msgs)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Snappy, parseCompression("unknown"))
}
