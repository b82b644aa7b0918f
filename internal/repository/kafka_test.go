package repository

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "FinSignal/pkg/kafka"
)

type recordingPublisher struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, messages...)
	return p.err
}

func TestKafkaSummaryPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewKafkaSummaryPublisher(pub, "finsignal.summaries")

	report := classificationReport()
	report.Summaries[1].Outputs[1].Value = math.NaN()
	require.NoError(t, sink.Write(context.Background(), report))

	assert.Equal(t, "finsignal.summaries", pub.topic)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, []byte("SPY"), pub.msgs[0].Key)

	ev, ok := pub.msgs[1].Value.(SummaryEvent)
	require.True(t, ok)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "QQQ", ev.Ticker)
	assert.Nil(t, ev.Outputs["rf"])
	require.NotNil(t, ev.Outputs["logreg"])
	assert.Equal(t, 0.45, *ev.Outputs["logreg"])

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"rf":null`)
}

func TestKafkaSummaryPublisherError(t *testing.T) {
	pub := &recordingPublisher{err: assert.AnError}
	err := NewKafkaSummaryPublisher(pub, "t").Write(context.Background(), classificationReport())
	assert.ErrorIs(t, err, assert.AnError)
}
