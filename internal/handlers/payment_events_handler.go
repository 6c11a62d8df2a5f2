package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/kafka"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/Shopify/sarama"
)

// EventPaymentSucceeded is published by the payment gateway bridge when a charge settles
const EventPaymentSucceeded = "payment_succeeded"

// PaymentSucceeded is the data of a payment_succeeded event
type PaymentSucceeded struct {
	OrderID          string `json:"order_id"`
	PaymentReference string `json:"payment_reference"`
}

// PaymentProcessor records a verified payment against an order
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, orderID, reference string) (*models.Order, error)
}

// PaymentEventsHandler drives payment processing from payment gateway events
type PaymentEventsHandler struct {
	processor PaymentProcessor
	logger    logger.Logger
}

// NewPaymentEventsHandler creates a new PaymentEventsHandler
func NewPaymentEventsHandler(processor PaymentProcessor, logger logger.Logger) *PaymentEventsHandler {
	return &PaymentEventsHandler{
		processor: processor,
		logger:    logger,
	}
}

// HandleMessage processes one payment event. Malformed events and business
// rejections are logged and committed; only failures worth redelivering are
// returned.
func (h *PaymentEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if eventType := kafka.Header(msg, "event_type"); eventType != "" && eventType != EventPaymentSucceeded {
		h.logger.Debug("Ignoring payment event", "eventType", eventType, "offset", msg.Offset)
		return nil
	}

	var event models.OutboxMessageEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Discarding malformed payment event", "error", err, "offset", msg.Offset)
		return nil
	}

	if event.EventType != EventPaymentSucceeded {
		h.logger.Debug("Ignoring payment event", "eventType", event.EventType, "eventID", event.EventID)
		return nil
	}

	var data PaymentSucceeded
	if err := json.Unmarshal(event.Data, &data); err != nil || data.OrderID == "" || data.PaymentReference == "" {
		h.logger.Error("Discarding payment event without order or reference",
			"error", err,
			"eventID", event.EventID)
		return nil
	}

	order, err := h.processor.ProcessPayment(ctx, data.OrderID, data.PaymentReference)
	if err != nil {
		if errors.IsRetryable(err) || errors.StatusCodeOf(err) >= http.StatusInternalServerError {
			return err
		}

		h.logger.Warn("Payment event rejected",
			"error", err,
			"code", errors.CodeOf(err),
			"eventID", event.EventID,
			"orderID", data.OrderID,
			"reference", data.PaymentReference)
		return nil
	}

	h.logger.Info("Payment event applied",
		"eventID", event.EventID,
		"orderID", order.ID,
		"orderStatus", order.OrderStatus,
		"paymentStatus", order.PaymentStatus)

	return nil
}
