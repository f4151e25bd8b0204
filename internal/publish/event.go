// Package publish forwards engine changes to message brokers as JSON events.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	Source = "patrolwatch"

	TypeFleetTick         = "fleet.tick"
	TypeFleetReset        = "fleet.reset"
	TypeAlertRaised       = "alert.raised"
	TypeAlertAcknowledged = "alert.acknowledged"

	fleetKey = "fleet"
)

// Event is the envelope every sink receives. Key picks the Kafka partition
// and is not part of the payload.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
	Key    string    `json:"-"`
	Data   any       `json:"data"`
}

func NewEvent(eventType, key string, at time.Time, data any) Event {
	return Event{
		ID:     uuid.New().String(),
		Type:   eventType,
		Source: Source,
		Time:   at,
		Key:    key,
		Data:   data,
	}
}

type Publisher interface {
	Name() string
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Multi fans events out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
