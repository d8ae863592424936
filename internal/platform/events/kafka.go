package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to one topic keyed by Event.Key.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaPublisher builds a writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}}
}

// Publish sends evts in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	msgs, err := toMessages(evts)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("events: publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessages(evts []Event) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, 0, len(evts))
	for _, evt := range evts {
		value, err := json.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("events: marshal %s: %w", evt.Type, err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(evt.Company + ":" + evt.Key),
			Value: value,
			Time:  evt.OccurredAt,
			Headers: []kafkago.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
				{Key: "event_id", Value: []byte(evt.ID.String())},
			},
		})
	}
	return msgs, nil
}
