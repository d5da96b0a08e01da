// Package kafka publishes refinement events for downstream consumers (cache
// invalidation, the presentation layer's feed). Publishing is optional and
// best-effort; the store is the source of truth.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/poolhopper/freeswim-etl/internal/domain"
)

// refinedEvent is the wire shape of one "facility refined" announcement.
type refinedEvent struct {
	PoolCode  string                  `json:"pool_code"`
	Records   []domain.ScheduleRecord `json:"records"`
	RefinedAt time.Time               `json:"refined_at"`
}

// Publisher produces refinement events to a Kafka topic. It implements
// pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishRefined announces that a facility's schedule records were
// regenerated. Keyed by pool code so per-facility ordering is preserved.
func (p *Publisher) PublishRefined(ctx context.Context, poolCode string, records []domain.ScheduleRecord) error {
	msg, err := serializeToMessage(poolCode, records)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a refinement event into a Kafka message.
func serializeToMessage(poolCode string, records []domain.ScheduleRecord) (kafkago.Message, error) {
	event := refinedEvent{
		PoolCode:  poolCode,
		Records:   records,
		RefinedAt: domain.Clock().Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize refined event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(poolCode),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_count", Value: []byte(strconv.Itoa(len(records)))},
			{Key: "refined_at", Value: []byte(event.RefinedAt.Format(time.RFC3339))},
		},
	}, nil
}
