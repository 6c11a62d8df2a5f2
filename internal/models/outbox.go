package models

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Order lifecycle event types
const (
	EventOrderCreated         = "order_created"
	EventOrderStatusChanged   = "order_status_changed"
	EventPaymentStatusChanged = "payment_status_changed"
	EventOrderCancelled       = "order_cancelled"
)

// EventTypes lists every event type the order aggregate emits
var EventTypes = []string{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventPaymentStatusChanged,
	EventOrderCancelled,
}

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope published for every order event
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// StatusChange is the data of status changed events
type StatusChange struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	Reference   string `json:"payment_reference,omitempty"`
}

// Cancellation is the data of order cancelled events
type Cancellation struct {
	OrderID        string        `json:"order_id"`
	OrderNumber    string        `json:"order_number"`
	PreviousStatus OrderStatus   `json:"previous_status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	Reason         string        `json:"reason,omitempty"`
	RefundRequired bool          `json:"refund_required"`
}

func newOrderEvent(eventType string, order *Order, data interface{}, at time.Time) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: order.ID,
		OccurredAt:  at,
		Data:        raw,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     at,
		Status:        OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent creates an order created event carrying the full order
func NewOrderCreatedEvent(order *Order) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderCreated, order, order, order.CreatedAt)
}

// NewOrderStatusChangedEvent creates an event for an order status change
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderStatusChanged, order, StatusChange{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   string(oldStatus),
		NewStatus:   string(order.OrderStatus),
	}, order.UpdatedAt)
}

// NewPaymentStatusChangedEvent creates an event for a payment status change
func NewPaymentStatusChangedEvent(order *Order, oldStatus PaymentStatus) (*OutboxMessage, error) {
	change := StatusChange{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OldStatus:   string(oldStatus),
		NewStatus:   string(order.PaymentStatus),
	}
	if order.PaymentReference != nil {
		change.Reference = *order.PaymentReference
	}

	return newOrderEvent(EventPaymentStatusChanged, order, change, order.UpdatedAt)
}

// NewOrderCancelledEvent creates an event for a cancellation. A refund is
// required when the order had already been paid.
func NewOrderCancelledEvent(order *Order, previous OrderStatus) (*OutboxMessage, error) {
	c := Cancellation{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: previous,
		PaymentStatus:  order.PaymentStatus,
		RefundRequired: order.PaymentStatus == PaymentStatusPaid,
	}
	if order.CancelReason != nil {
		c.Reason = *order.CancelReason
	}

	return newOrderEvent(EventOrderCancelled, order, c, order.UpdatedAt)
}
