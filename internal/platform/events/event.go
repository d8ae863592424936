// Package events publishes ledger facts to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger event types.
const (
	TypeBatchPosted   = "ledger.posted"
	TypeBatchReversed = "ledger.reversed"
	TypePeriodClosed  = "ledger.period_closed"
)

// Event is the envelope written to the ledger topic.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Company    string          `json:"company"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New wraps payload into an envelope. key orders events of the same aggregate.
func New(eventType, company, key string, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Company:    company,
		Key:        key,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}, nil
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error                            { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, evts ...Event) error {
	r.Events = append(r.Events, evts...)
	return nil
}

func (r *Recorder) Close() error { return nil }
