// Package events publishes run lifecycle events to Kafka so downstream
// services can react to completed harvests without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/scholium/harvest-service/internal/domain"
	"github.com/scholium/harvest-service/internal/observability"
)

// EventTypeRunCompleted is the event type for terminal harvest runs.
const EventTypeRunCompleted = "harvest.run_completed"

// defaultServiceName identifies the source service in event envelopes.
const defaultServiceName = "harvest-service"

// Publisher delivers run completion events to interested consumers.
type Publisher interface {
	// PublishRunCompleted publishes the final result of a harvest run.
	PublishRunCompleted(ctx context.Context, result *domain.HarvestFinalResult) error

	// Close releases the underlying transport.
	Close() error
}

// RunCompletedEvent is the wire envelope for run completion events.
type RunCompletedEvent struct {
	// EventID uniquely identifies this event instance.
	EventID string `json:"event_id"`
	// EventType is always EventTypeRunCompleted.
	EventType string `json:"event_type"`
	// Source identifies the publishing service.
	Source string `json:"source"`
	// OccurredAt is when the run reached its terminal status.
	OccurredAt time.Time `json:"occurred_at"`
	// Payload is the final result of the run.
	Payload *domain.HarvestFinalResult `json:"payload"`
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for harvest events.
	Topic string
	// ServiceName overrides the source field in event envelopes.
	ServiceName string
}

// kafkaWriter is the subset of kafka.Writer used by the publisher.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes run completion events to a Kafka topic.
// Messages are keyed by run ID so events for the same run land on the
// same partition.
type KafkaPublisher struct {
	writer      kafkaWriter
	serviceName string
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
// The metrics parameter may be nil.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	return &KafkaPublisher{
		writer:      writer,
		serviceName: serviceName,
		logger:      logger.With().Str("component", "event_publisher").Logger(),
		metrics:     metrics,
	}
}

// PublishRunCompleted publishes the final result of a harvest run.
func (p *KafkaPublisher) PublishRunCompleted(ctx context.Context, result *domain.HarvestFinalResult) error {
	if result == nil {
		return fmt.Errorf("result is required")
	}
	if result.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	event := RunCompletedEvent{
		EventID:    uuid.New().String(),
		EventType:  EventTypeRunCompleted,
		Source:     p.serviceName,
		OccurredAt: time.Now().UTC(),
		Payload:    result,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(result.RunID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.RecordEventPublishFailed()
		}
		return fmt.Errorf("write message: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordEventPublished()
	}
	p.logger.Debug().
		Str("run_id", result.RunID).
		Str("event_id", event.EventID).
		Str("status", string(result.Status)).
		Msg("published run completed event")

	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info().Msg("closing event publisher")
	return p.writer.Close()
}
