package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/database"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDatabase        = errors.New("database error")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

const orderColumns = `
	id, order_number, user_id, is_guest_order, guest_email, guest_name, guest_phone,
	subtotal, tax, total, is_rush, order_status, payment_status, payment_reference,
	cancel_reason, risk_score, risk_level, requires_review, version,
	created_at, updated_at, paid_at, completed_at, cancelled_at`

// ListParams filters and pages a listing of orders
type ListParams struct {
	Cursor        string
	Limit         int
	UserID        string
	OrderStatus   models.OrderStatus
	PaymentStatus models.PaymentStatus
}

// OrderPage is one page of a cursor listing. NextCursor is empty on the last page.
type OrderPage struct {
	Orders     []*models.Order `json:"orders"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// OrderRepository handles database operations for orders and their items
type OrderRepository struct {
	db         *database.Database
	outboxRepo *OutboxRepository
	logger     logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, outboxRepo *OutboxRepository, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Create inserts the order, its items and the given outbox events in one transaction
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, events ...*models.OutboxMessage) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (` + orderColumns + `)
			VALUES (
				:id, :order_number, :user_id, :is_guest_order, :guest_email, :guest_name, :guest_phone,
				:subtotal, :tax, :total, :is_rush, :order_status, :payment_status, :payment_reference,
				:cancel_reason, :risk_score, :risk_level, :requires_review, :version,
				:created_at, :updated_at, :paid_at, :completed_at, :cancelled_at
			)
		`

		if _, err := tx.NamedExecContext(ctx, query, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		itemQuery := `
			INSERT INTO order_items (id, order_id, position, service_type, description, quantity, unit_price, total_price)
			VALUES (:id, :order_id, :position, :service_type, :description, :quantity, :unit_price, :total_price)
		`

		for i := range order.Items {
			if _, err := tx.NamedExecContext(ctx, itemQuery, &order.Items[i]); err != nil {
				return fmt.Errorf("insert order item %d: %w", i, err)
			}
		}

		return r.createEvents(ctx, tx, events)
	})
}

// Update persists the mutable fields of order if its stored version still
// equals order.Version, then increments order.Version.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order, events ...*models.OutboxMessage) error {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE orders
			SET order_status = $1, payment_status = $2, payment_reference = $3, cancel_reason = $4,
				risk_score = $5, risk_level = $6, requires_review = $7,
				updated_at = $8, paid_at = $9, completed_at = $10, cancelled_at = $11,
				version = version + 1
			WHERE id = $12 AND version = $13
		`

		result, err := tx.ExecContext(ctx, query,
			order.OrderStatus,
			order.PaymentStatus,
			order.PaymentReference,
			order.CancelReason,
			order.RiskScore,
			order.RiskLevel,
			order.RequiresReview,
			order.UpdatedAt,
			order.PaidAt,
			order.CompletedAt,
			order.CancelledAt,
			order.ID,
			order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		if rowsAffected == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID); err != nil {
				return fmt.Errorf("check order: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}

		return r.createEvents(ctx, tx, events)
	})

	if err == nil {
		order.Version++
	}
	return err
}

// GetByID retrieves an order and its items
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	if err := r.db.DB.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	items, err := r.itemsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	return &order, nil
}

// List returns a page of orders, newest first, after the given cursor
func (r *OrderRepository) List(ctx context.Context, params ListParams) (*OrderPage, error) {
	limit := ClampLimit(params.Limit)

	var (
		conds []string
		args  []interface{}
	)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.Cursor != "" {
		c, err := DecodeCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		conds = append(conds, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(c.CreatedAt), arg(c.ID)))
	}
	if params.UserID != "" {
		conds = append(conds, "user_id = "+arg(params.UserID))
	}
	if params.OrderStatus != "" {
		conds = append(conds, "order_status = "+arg(params.OrderStatus))
	}
	if params.PaymentStatus != "" {
		conds = append(conds, "payment_status = "+arg(params.PaymentStatus))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit+1)

	var orders []*models.Order
	if err := r.db.DB.SelectContext(ctx, &orders, query, args...); err != nil {
		r.logger.Error("Failed to list orders", "error", err, "limit", limit)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	page := &OrderPage{Orders: orders}
	if len(orders) > limit {
		page.Orders = orders[:limit]
		last := page.Orders[limit-1]
		page.NextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	if len(page.Orders) == 0 {
		return page, nil
	}

	ids := make([]string, len(page.Orders))
	for i, o := range page.Orders {
		ids[i] = o.ID
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range page.Orders {
		o.Items = items[o.ID]
	}

	return page, nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	query, args, err := sqlx.In(`
		SELECT id, order_id, position, service_type, description, quantity, unit_price, total_price
		FROM order_items
		WHERE order_id IN (?)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	var items []models.OrderItem
	if err := r.db.DB.SelectContext(ctx, &items, r.db.DB.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to load order items", "error", err, "orders", len(orderIDs))
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	byOrder := make(map[string][]models.OrderItem, len(orderIDs))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	return byOrder, nil
}

func (r *OrderRepository) createEvents(ctx context.Context, tx *sqlx.Tx, events []*models.OutboxMessage) error {
	for _, msg := range events {
		if err := r.outboxRepo.CreateInTx(ctx, tx, msg); err != nil {
			return err
		}
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on any error
func (r *OrderRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) {
			return err
		}
		r.logger.Error("Transaction failed", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: commit: %v", ErrDatabase, err)
	}

	return nil
}
