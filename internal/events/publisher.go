// Package events publishes job events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"media-transcription-pipeline/internal/observability/metrics"
)

// Event type labels used for metrics and the eventType header.
const (
	EventStatus  = "status"
	EventSegment = "segment"
	EventFinal   = "final"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes job status, segment and final transcript events to
// separate Kafka topics. With Kafka disabled it only logs.
type Publisher struct {
	writers   map[string]messageWriter
	topics    map[string]string
	principal string
	enabled   bool
	metrics   *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicStatus  string
	TopicSegment string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// New creates a Kafka event publisher with one writer per topic.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			topics:  map[string]string{},
			enabled: false,
			metrics: m,
		}
	}

	topics := map[string]string{
		EventStatus:  cfg.TopicStatus,
		EventSegment: cfg.TopicSegment,
		EventFinal:   cfg.TopicFinal,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			topics:    topics,
			principal: cfg.Principal,
			enabled:   false,
			metrics:   m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writers := make(map[string]messageWriter, len(topics))
	for eventType, topic := range topics {
		if topic == "" {
			continue
		}
		writers[eventType] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicStatus", cfg.TopicStatus).
		Str("topicSegment", cfg.TopicSegment).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writers:   writers,
		topics:    topics,
		principal: cfg.Principal,
		enabled:   true,
		metrics:   m,
	}
}

// PublishStatus publishes a job stage change.
func (p *Publisher) PublishStatus(ctx context.Context, key string, event any) error {
	return p.publish(ctx, EventStatus, key, event)
}

// PublishSegment publishes a finished segment.
func (p *Publisher) PublishSegment(ctx context.Context, key string, event any) error {
	return p.publish(ctx, EventSegment, key, event)
}

// PublishFinal publishes an assembled transcript.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, EventFinal, key, event)
}

// publish writes one message keyed by job id so a job's events stay in
// one partition, in order.
func (p *Publisher) publish(ctx context.Context, eventType, key string, event any) error {
	start := time.Now()
	topic := p.topics[eventType]

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	writer := p.writers[eventType]
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes every writer.
func (p *Publisher) Close() error {
	var errs []error
	for eventType, w := range p.writers {
		if err := w.Close(); err != nil {
			log.Error().Err(err).Str("eventType", eventType).Msg("Error closing Kafka writer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
