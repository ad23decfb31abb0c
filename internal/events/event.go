// Package events publishes ledger domain events after a unit of work commits.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a ledger event.
type Type string

const (
	TypeInvoiceCreated  Type = "invoice.created"
	TypeInvoiceUpdated  Type = "invoice.updated"
	TypePaymentRecorded Type = "payment.recorded"
	TypeReturnCreated   Type = "return.created"
	TypeReturnApproved  Type = "return.approved"
	TypeReturnRejected  Type = "return.rejected"
)

// Event is the envelope written to the broker.
type Event struct {
	ID          string    `json:"event_id"`
	Type        Type      `json:"event_type"`
	CompanyID   int64     `json:"company_id"`
	AggregateID int64     `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Payload     any       `json:"payload,omitempty"`
}

// New builds an event with a fresh id.
func New(t Type, companyID, aggregateID int64, payload any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		CompanyID:   companyID,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Memory keeps published events in memory.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
