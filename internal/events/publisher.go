// Package events publishes detected submissions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes SubmissionEvent messages keyed by handle, so one handle's
// submissions stay ordered within a partition
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a Kafka publisher for the given brokers and topic
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: false,
		},
	}
}

// NewPublisherWithWriter builds a publisher using a custom writer (tests)
func NewPublisherWithWriter(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Publish writes one event
func (p *Publisher) Publish(ctx context.Context, event models.SubmissionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Handle),
		Value: payload,
		Time:  event.DetectedAt,
		Headers: []kafka.Header{
			{Key: "session_id", Value: []byte(event.SessionID)},
			{Key: "submission_id", Value: []byte(strconv.FormatInt(event.Submission.ID, 10))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish submission %d: %w", event.Submission.ID, err)
	}
	return nil
}

// Close shuts down the underlying writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
