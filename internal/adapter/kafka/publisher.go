// Package kafka publishes newly inserted event records to a topic for
// downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/hazardwatch/hazard-tracker/internal/config"
	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

// Publisher produces event records to the configured topic.
// It implements poller.Publisher.
type Publisher struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, metrics: metrics, logger: logger}
}

// PublishEvents serializes and publishes a batch of records in a
// single WriteMessages call. Only rows the store reported as newly
// inserted should reach here; matched rows are already known
// downstream.
func (p *Publisher) PublishEvents(ctx context.Context, rows []domain.EventRecord) error {
	if len(rows) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish events: %w", err)
	}

	p.metrics.EventsPublished.Add(float64(len(rows)))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an EventRecord into a Kafka message
// keyed by the upstream event id, so all geometries of one event land
// on the same partition.
func serializeToMessage(row domain.EventRecord) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(row.EventID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(row.CategoryTitle)},
			{Key: "observed_at", Value: []byte(row.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
