package fulfillment

import (
	"context"
	"time"
)

// Event types published after a committed transition.
const (
	EventDraftCreated       = "draft.created"
	EventDraftUpdated       = "draft.updated"
	EventDraftArchived      = "draft.archived"
	EventDraftCancelled     = "draft.cancelled"
	EventDraftConverted     = "draft.converted"
	EventOrderClosed        = "order.closed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderDeleted       = "order.deleted"
	EventInventoryAdjusted  = "inventory.adjusted"
	EventBillCreated        = "bill.created"
	EventPaymentAdded       = "payment.added"
	EventPaymentReversed    = "payment.reversed"
	EventInventoryShortfall = "inventory.shortfall"
)

// Event describes a committed state change. Amount and Quantity are set
// when meaningful for the event type.
type Event struct {
	Type       string    `json:"type"`
	StoreID    string    `json:"store_id"`
	EntityID   string    `json:"entity_id"`
	Status     string    `json:"status,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Quantity   int64     `json:"quantity,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers events to downstream consumers. Publishing happens
// after the state change is committed; a failure never undoes it.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
