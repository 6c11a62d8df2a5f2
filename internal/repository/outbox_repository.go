package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/database"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const outboxColumns = `
	id, aggregate_type, aggregate_id, event_type, payload,
	created_at, processed_at, processing_attempts, last_error, status`

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// CreateInTx inserts message inside an open transaction and sets its ID
func (r *OutboxRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (aggregate_type, aggregate_id, event_type, payload, created_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.Status,
	).Scan(&message.ID)

	if err != nil {
		return fmt.Errorf("failed to create outbox message in transaction: %w", err)
	}

	return nil
}

// GetPendingMessages claims up to limit pending messages, oldest first.
// Rows locked by another relay are skipped.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1
		WHERE id IN (
			SELECT id FROM outbox_messages
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	var messages []*models.OutboxMessage

	err := r.db.DB.SelectContext(ctx, &messages, query,
		models.OutboxStatusProcessing,
		models.OutboxStatusPending,
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to claim pending outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// MarkAsCompleted records a successful publish
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, models.OutboxStatusCompleted, nil)
}

// MarkForRetry puts a message back in the pending queue with its last error
func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	return r.setStatus(ctx, id, models.OutboxStatusPending, &errorMessage)
}

// MoveToDeadLetter marks the message failed and records it in the dead letter table atomically
func (r *OutboxRepository) MoveToDeadLetter(ctx context.Context, message *models.OutboxMessage, errorMessage string) error {
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox_messages SET status = $1, last_error = $2 WHERE id = $3`,
		models.OutboxStatusFailed, errorMessage, message.ID,
	); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := insertDeadLetter(ctx, tx, models.NewDeadLetterMessage(message, errorMessage)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to move message to dead letter queue", "error", err, "messageID", message.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetMessage retrieves an outbox message by ID
func (r *OutboxRepository) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	var message models.OutboxMessage

	err := r.db.DB.GetContext(ctx, &message, `SELECT `+outboxColumns+` FROM outbox_messages WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get outbox message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

func (r *OutboxRepository) setStatus(ctx context.Context, id int64, status models.OutboxStatus, lastError *string) error {
	var processedAt *time.Time
	if status == models.OutboxStatusCompleted {
		now := models.GetCurrentTime()
		processedAt = &now
	}

	_, err := r.db.DB.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $1, processed_at = COALESCE($2, processed_at), last_error = COALESCE($3, last_error)
		WHERE id = $4
	`, status, processedAt, lastError, id)

	if err != nil {
		r.logger.Error("Failed to update outbox message", "error", err, "messageID", id, "status", status)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}
