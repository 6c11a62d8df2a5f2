package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
)

// LoggingHandler logs outbox messages instead of publishing them. It is
// used when no Kafka brokers are configured.
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage handles the outbox message by logging it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Order event",
		"messageID", message.ID,
		"eventType", event.EventType,
		"aggregateID", event.AggregateID,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt,
		"data", string(event.Data))

	return nil
}

// RegisterAll registers handler for every order event type
func RegisterAll(p *Processor, handler MessageHandler) {
	for _, eventType := range models.EventTypes {
		p.RegisterHandler(eventType, handler)
	}
}
