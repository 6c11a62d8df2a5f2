package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/database"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const deadLetterColumns = `
	id, original_message_id, aggregate_type, aggregate_id, event_type, payload,
	error_message, attempts, status, created_at, resolved_at`

// DeadLetterRepository handles order events that exhausted their publish attempts
type DeadLetterRepository struct {
	db         *database.Database
	outboxRepo *OutboxRepository
	logger     logger.Logger
}

// NewDeadLetterRepository creates a new DeadLetterRepository
func NewDeadLetterRepository(db *database.Database, outboxRepo *OutboxRepository, logger logger.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func insertDeadLetter(ctx context.Context, tx *sqlx.Tx, message *models.DeadLetterMessage) error {
	query := `
		INSERT INTO dead_letter_messages (
			original_message_id, aggregate_type, aggregate_id, event_type, payload,
			error_message, attempts, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query,
		message.OriginalMessageID,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.ErrorMessage,
		message.Attempts,
		message.Status,
		message.CreatedAt,
	).Scan(&message.ID)

	if err != nil {
		return fmt.Errorf("%w: insert dead letter: %v", ErrDatabase, err)
	}
	return nil
}

// List returns dead letters with the given status, oldest first
func (r *DeadLetterRepository) List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	query := `SELECT ` + deadLetterColumns + `
		FROM dead_letter_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	var messages []*models.DeadLetterMessage
	if err := r.db.DB.SelectContext(ctx, &messages, query, status, ClampLimit(limit), offset); err != nil {
		r.logger.Error("Failed to list dead letter messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// GetMessage retrieves a dead letter by ID
func (r *DeadLetterRepository) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	var message models.DeadLetterMessage

	err := r.db.DB.GetContext(ctx, &message, `SELECT `+deadLetterColumns+` FROM dead_letter_messages WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get dead letter message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

// Requeue copies a pending dead letter back into the outbox and marks it requeued
func (r *DeadLetterRepository) Requeue(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var message models.DeadLetterMessage
	err = tx.GetContext(ctx, &message,
		`SELECT `+deadLetterColumns+` FROM dead_letter_messages WHERE id = $1 AND status = $2 FOR UPDATE`,
		id, models.DeadLetterStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	outboxMsg := message.Requeue()
	if err := r.outboxRepo.CreateInTx(ctx, tx, outboxMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := r.resolve(ctx, tx, id, models.DeadLetterStatusRequeued); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	r.logger.Info("Dead letter requeued", "messageID", id, "outboxID", outboxMsg.ID)
	return outboxMsg, nil
}

// Discard marks a pending dead letter as permanently dropped
func (r *DeadLetterRepository) Discard(ctx context.Context, id int64) error {
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := r.resolve(ctx, tx, id, models.DeadLetterStatusDiscarded); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return nil
}

func (r *DeadLetterRepository) resolve(ctx context.Context, tx *sqlx.Tx, id int64, status models.DeadLetterStatus) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE dead_letter_messages
		SET status = $1, resolved_at = $2
		WHERE id = $3 AND status = $4
	`, status, models.GetCurrentTime(), id, models.DeadLetterStatusPending)
	if err != nil {
		r.logger.Error("Failed to resolve dead letter message", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
