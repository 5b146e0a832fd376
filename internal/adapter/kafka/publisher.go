package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-hazard-etl/internal/config"
	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
)

// OutputEvent announces a derived raster that was written by a run.
type OutputEvent struct {
	domain.DerivedRecord
	ProducedAt time.Time `json:"produced_at"`
}

// Publisher produces output events to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, clock: clock, logger: logger}
}

// Publish serializes rec and writes it keyed by its output id, so every
// rebuild of the same output lands on the same partition.
func (p *Publisher) Publish(ctx context.Context, rec domain.DerivedRecord) error {
	msg, err := serializeToMessage(OutputEvent{DerivedRecord: rec, ProducedAt: p.clock.Now().UTC()})
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", rec.OutputID, err)
	}
	p.logger.Debug("output event published", "output_id", rec.OutputID, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals an OutputEvent into a Kafka message.
func serializeToMessage(event OutputEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize output event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.OutputID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(event.Key.Kind)},
			{Key: "produced_at", Value: []byte(event.ProducedAt.Format(time.RFC3339))},
		},
	}, nil
}
