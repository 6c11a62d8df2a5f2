package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Store is the part of the outbox repository the processor needs
type Store interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkForRetry(ctx context.Context, id int64, errorMessage string) error
	MoveToDeadLetter(ctx context.Context, message *models.OutboxMessage, errorMessage string) error
}

// Processor relays committed outbox messages to their handlers
type Processor struct {
	store           Store
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxAttempts     int
	messageTimeout  time.Duration
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	// MaxAttempts is the number of failed deliveries after which a message
	// is moved to the dead letter table
	MaxAttempts int
	// MessageTimeout bounds one delivery. Defaults to PollingInterval.
	MessageTimeout time.Duration
}

// statusTimeout bounds the write that records a delivery outcome
const statusTimeout = 5 * time.Second

// NewProcessor creates a new Processor
func NewProcessor(store Store, config ProcessorConfig, logger logger.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	messageTimeout := config.MessageTimeout
	if messageTimeout <= 0 {
		messageTimeout = config.PollingInterval
	}

	return &Processor{
		store:           store,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxAttempts:     config.MaxAttempts,
		messageTimeout:  messageTimeout,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// RegisterHandler registers a message handler for a specific event type
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlers[eventType] = handler
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.processOutbox()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize,
		"maxAttempts", p.maxAttempts)
}

// Stop stops the outbox processor and waits for the current batch
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Outbox processor stopped")
}

func (p *Processor) processOutbox() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.processBatch(p.ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", "error", err)
			}
		}
	}
}

// processBatch claims and handles one batch, returning how many messages
// were delivered. Every claimed message leaves the batch completed, released
// for retry or dead lettered, even when parent is cancelled halfway.
func (p *Processor) processBatch(parent context.Context) (int, error) {
	claimCtx, cancel := context.WithTimeout(parent, p.pollingInterval)
	messages, err := p.store.GetPendingMessages(claimCtx, p.batchSize)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		return 0, nil
	}

	p.logger.Debug("Processing batch of outbox messages", "count", len(messages))

	delivered := 0
	for i, msg := range messages {
		if parent.Err() != nil {
			p.release(messages[i:], "outbox processor stopped")
			break
		}

		if err := p.processMessage(parent, msg); err != nil {
			p.logger.Warn("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType,
				"attempt", msg.ProcessingAttempts)
			continue
		}
		delivered++
	}

	return delivered, nil
}

func (p *Processor) processMessage(parent context.Context, msg *models.OutboxMessage) error {
	handler, exists := p.handlers[msg.EventType]
	if !exists {
		errorMsg := fmt.Sprintf("no handler registered for event type: %s", msg.EventType)
		p.deadLetter(msg, errorMsg)
		return fmt.Errorf("%s", errorMsg)
	}

	ctx, cancel := context.WithTimeout(parent, p.messageTimeout)
	err := handler.HandleMessage(ctx, msg)
	cancel()

	if err != nil {
		// A delivery cut short by Stop does not count against the message.
		if parent.Err() != nil {
			p.release([]*models.OutboxMessage{msg}, err.Error())
			return err
		}

		// ProcessingAttempts already counts this claim.
		if msg.ProcessingAttempts >= p.maxAttempts {
			p.deadLetter(msg, fmt.Sprintf("max attempts reached: %v", err))
			return fmt.Errorf("message failed after %d attempts: %w", msg.ProcessingAttempts, err)
		}

		p.release([]*models.OutboxMessage{msg}, err.Error())
		return err
	}

	statusCtx, cancelStatus := statusContext()
	defer cancelStatus()

	if err := p.store.MarkAsCompleted(statusCtx, msg.ID); err != nil {
		p.logger.Error("Failed to mark message as completed", "error", err, "messageID", msg.ID)
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Debug("Successfully processed message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

// statusContext is independent of the batch and delivery contexts
func statusContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), statusTimeout)
}

func (p *Processor) release(messages []*models.OutboxMessage, reason string) {
	ctx, cancel := statusContext()
	defer cancel()

	for _, msg := range messages {
		if err := p.store.MarkForRetry(ctx, msg.ID, reason); err != nil {
			p.logger.Error("Failed to release message for retry", "error", err, "messageID", msg.ID)
		}
	}
}

func (p *Processor) deadLetter(msg *models.OutboxMessage, reason string) {
	p.logger.Error("Moving message to dead letter queue",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType,
		"attempts", msg.ProcessingAttempts,
		"reason", reason)

	ctx, cancel := statusContext()
	defer cancel()

	if err := p.store.MoveToDeadLetter(ctx, msg, reason); err != nil {
		p.logger.Error("Failed to move message to dead letter queue", "error", err, "messageID", msg.ID)
	}
}
