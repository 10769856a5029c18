// Package kafka publishes turn events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/veneer/pkg/eventstream"
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the Kafka publisher.
type Config struct {
	// Brokers is a list of host:port addresses.
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish. Zero uses 10s.
	WriteTimeout time.Duration
}

// Publisher writes TurnRecordedEvent payloads as JSON, keyed by turn ID so a
// turn's events land on one partition.
type Publisher struct {
	writer messageWriter
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(s string) []string {
	var out []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewPublisher creates a publisher for c.Topic on c.Brokers.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	timeout := c.WriteTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(c.Brokers...),
			Topic:                  c.Topic,
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			WriteTimeout:           timeout,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// PublishTurn writes event to the topic.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnRecordedEvent) error {
	msg, err := newMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing turn event: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(event *eventstream.TurnRecordedEvent) (kafkago.Message, error) {
	if event == nil {
		return kafkago.Message{}, eventstream.ErrNilTurnEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding turn event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(event.Turn.ID),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}, nil
}
