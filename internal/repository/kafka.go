package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinSignal/internal/domain/models"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
)

// Publisher is the part of the Kafka producer used by the summary publisher.
type Publisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// SummaryEvent is the JSON payload published per ticker.
type SummaryEvent struct {
	RunID      string              `json:"run_id"`
	Task       string              `json:"task"`
	Ticker     string              `json:"ticker"`
	Interval   string              `json:"interval"`
	LastDate   time.Time           `json:"last_date"`
	Outputs    map[string]*float64 `json:"outputs"`
	Ensemble   *float64            `json:"ensemble"`
	Label      string              `json:"label,omitempty"`
	Confidence *float64            `json:"confidence"`
	Windows    int                 `json:"windows"`
	Abstained  int                 `json:"abstained"`
}

// KafkaSummaryPublisher publishes one message per ticker summary, keyed by
// ticker so a ticker's summaries stay on one partition.
type KafkaSummaryPublisher struct {
	producer Publisher
	topic    string
	l        *applogger.Logger
}

func NewKafkaSummaryPublisher(producer Publisher, topic string) *KafkaSummaryPublisher {
	return &KafkaSummaryPublisher{producer: producer, topic: topic}
}

// SetLogger injects a structured logger.
func (p *KafkaSummaryPublisher) SetLogger(l *applogger.Logger) { p.l = l }

func (p *KafkaSummaryPublisher) Name() string { return "kafka" }

func (p *KafkaSummaryPublisher) Write(ctx context.Context, report *models.RunReport) error {
	if len(report.Summaries) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(report.Summaries))
	for i, sm := range report.Summaries {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(sm.Ticker),
			Value: NewSummaryEvent(report, sm),
		}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish summaries: %w", err)
	}
	if p.l != nil {
		p.l.Info("summaries published",
			applogger.String("topic", p.topic),
			applogger.String("run_id", report.RunID),
			applogger.Int("messages", len(msgs)),
		)
	}
	return nil
}

// NewSummaryEvent converts a summary into its wire form; undefined numbers
// become null.
func NewSummaryEvent(report *models.RunReport, sm models.TickerSummary) SummaryEvent {
	outs := make(map[string]*float64, len(sm.Outputs))
	for _, o := range sm.Outputs {
		outs[o.Name] = nullable(o.Value)
	}
	return SummaryEvent{
		RunID:      report.RunID,
		Task:       string(report.Task),
		Ticker:     sm.Ticker,
		Interval:   report.Interval,
		LastDate:   sm.LastDate.UTC(),
		Outputs:    outs,
		Ensemble:   nullable(sm.Ensemble),
		Label:      sm.Label,
		Confidence: nullable(sm.Confidence),
		Windows:    sm.Windows,
		Abstained:  sm.Abstained,
	}
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
