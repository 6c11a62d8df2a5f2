package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/clients"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/repository"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/risk"
	apperrors "github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
)

// PaymentVerifier confirms that a payment reference cleared with the gateway
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string) (clients.Verification, error)
}

// StatusUpdate requests a change of either or both status fields
type StatusUpdate struct {
	OrderStatus      *models.OrderStatus   `json:"orderStatus,omitempty"`
	PaymentStatus    *models.PaymentStatus `json:"paymentStatus,omitempty"`
	PaymentReference string                `json:"-"`
	CancelReason     string                `json:"-"`
}

// OrderService owns the order lifecycle: creation and both status machines
type OrderService struct {
	store    repository.OrderStore
	assessor risk.Assessor
	verifier PaymentVerifier
	logger   logger.Logger
	now      func() time.Time
}

// NewOrderService creates a new OrderService. Pass risk.NoopAssessor when
// risk assessment is disabled.
func NewOrderService(
	store repository.OrderStore,
	assessor risk.Assessor,
	verifier PaymentVerifier,
	logger logger.Logger,
) *OrderService {
	return &OrderService{
		store:    store,
		assessor: assessor,
		verifier: verifier,
		logger:   logger,
		now:      models.GetCurrentTime,
	}
}

// CreateOrder validates the input, scores it for risk and persists the order,
// its items and an order_created event in one transaction.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := input.Validate(); err != nil {
		s.logger.Debug("Rejected order input", "error", err)
		return nil, err
	}

	now := s.now()
	order := input.toOrder(now)

	s.assessRisk(ctx, order, input)

	event, err := models.NewOrderCreatedEvent(order)
	if err != nil {
		s.logger.Error("Failed to create outbox message", "error", err, "orderID", order.ID)
		return nil, apperrors.NewOrderCreationFailedError("failed to create order event").
			WithContext("orderId", order.ID)
	}

	if err := s.store.Create(ctx, order, event); err != nil {
		s.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return nil, apperrors.NewOrderCreationFailedError("failed to create order").
			WithContext("orderId", order.ID).
			WithContext("orderNumber", order.OrderNumber)
	}

	s.logger.Info("Order created",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"total", order.Total.StringFixed(2),
		"guest", order.IsGuestOrder)

	return order, nil
}

func (s *OrderService) assessRisk(ctx context.Context, order *models.Order, input CreateOrderInput) {
	customer := risk.Customer{
		UserID:    input.UserID,
		Email:     input.GuestEmail,
		Phone:     input.GuestPhone,
		IsGuest:   order.IsGuestOrder,
		IPAddress: input.IPAddress,
	}

	summary := risk.OrderSummary{
		Total:     order.Total,
		IsRush:    order.IsRush,
		ItemCount: len(order.Items),
	}
	for _, item := range order.Items {
		if item.Quantity > summary.MaxQuantity {
			summary.MaxQuantity = item.Quantity
		}
	}

	assessment, err := s.assessor.Assess(ctx, customer, summary)
	if err != nil {
		if errors.Is(err, risk.ErrDisabled) {
			s.logger.Debug("Risk assessment disabled", "orderID", order.ID)
		} else {
			s.logger.Warn("Risk assessment failed, creating order without risk data",
				"error", err,
				"orderID", order.ID)
		}
		return
	}

	score := assessment.RiskScore
	level := string(assessment.RiskLevel)
	order.RiskScore = &score
	order.RiskLevel = &level
	order.RequiresReview = assessment.RequiresReview

	if assessment.RequiresReview {
		s.logger.Warn("Order flagged for manual review",
			"orderID", order.ID,
			"orderNumber", order.OrderNumber,
			"riskScore", score,
			"riskLevel", level,
			"recommendation", assessment.Recommendation,
			"factors", assessment.Factors)
	}
}

// GetOrder returns an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, s.loadError(orderID, err)
	}
	return order, nil
}

// ListOrdersInput filters and pages ListOrders
type ListOrdersInput struct {
	Cursor        string
	Limit         int
	UserID        string
	OrderStatus   models.OrderStatus
	PaymentStatus models.PaymentStatus
}

// ListOrders returns a page of orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, input ListOrdersInput) (*repository.OrderPage, error) {
	if input.OrderStatus != "" && !input.OrderStatus.IsValid() {
		return nil, apperrors.NewValidationError("unknown order status").
			WithContext("orderStatus", input.OrderStatus)
	}
	if input.PaymentStatus != "" && !input.PaymentStatus.IsValid() {
		return nil, apperrors.NewValidationError("unknown payment status").
			WithContext("paymentStatus", input.PaymentStatus)
	}
	if input.Limit < 0 {
		return nil, apperrors.NewValidationError("limit must not be negative")
	}

	page, err := s.store.List(ctx, repository.ListParams{
		Cursor:        input.Cursor,
		Limit:         input.Limit,
		UserID:        input.UserID,
		OrderStatus:   input.OrderStatus,
		PaymentStatus: input.PaymentStatus,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, apperrors.NewValidationError("invalid cursor")
		}
		s.logger.Error("Failed to list orders", "error", err)
		return nil, apperrors.NewAppError(apperrors.ErrInternal, apperrors.CodeInternal,
			"failed to list orders", http.StatusInternalServerError, false)
	}

	return page, nil
}

// UpdateStatus applies a status update after checking both transition tables.
// Requesting the current order status again leaves that field alone; payment
// status has no such allowance.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, update StatusUpdate) (*models.Order, error) {
	if update.OrderStatus == nil && update.PaymentStatus == nil {
		return nil, apperrors.NewValidationError("orderStatus or paymentStatus is required")
	}
	if update.OrderStatus != nil && !update.OrderStatus.IsValid() {
		return nil, apperrors.NewValidationError("unknown order status").
			WithContext("orderStatus", *update.OrderStatus)
	}
	if update.PaymentStatus != nil && !update.PaymentStatus.IsValid() {
		return nil, apperrors.NewValidationError("unknown payment status").
			WithContext("paymentStatus", *update.PaymentStatus)
	}

	return s.mutate(ctx, orderID, func(order *models.Order) ([]*models.OutboxMessage, error) {
		return s.apply(order, update)
	})
}

// ProcessPayment verifies a payment reference and marks the order paid. The
// order is not touched when verification fails.
func (s *OrderService) ProcessPayment(ctx context.Context, orderID, reference string) (*models.Order, error) {
	if reference == "" {
		return nil, apperrors.NewValidationError("payment reference is required")
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == models.PaymentStatusPaid && order.PaymentReference != nil &&
		*order.PaymentReference == reference {
		s.logger.Info("Payment already recorded", "orderID", orderID, "reference", reference)
		return order, nil
	}
	if order.OrderStatus.IsTerminal() {
		return nil, apperrors.NewInvalidOperationError(
			fmt.Sprintf("cannot process payment for a %s order", order.OrderStatus)).
			WithContext("orderId", orderID)
	}
	if !order.PaymentStatus.CanTransitionTo(models.PaymentStatusPaid) {
		return nil, apperrors.NewInvalidStateTransitionError("paymentStatus",
			string(order.PaymentStatus), string(models.PaymentStatusPaid)).
			WithContext("orderId", orderID)
	}

	verification, err := s.verifier.VerifyPayment(ctx, reference)
	if err != nil {
		s.logger.Error("Payment verifier failed", "error", err, "orderID", orderID, "reference", reference)
		return nil, apperrors.NewPaymentVerifierError("payment verification failed").
			WithContext("orderId", orderID).
			WithContext("reference", reference)
	}
	if !verification.Verified {
		s.logger.Warn("Payment not verified", "orderID", orderID, "reference", reference)
		return nil, apperrors.NewPaymentNotVerifiedError("payment could not be verified").
			WithContext("orderId", orderID).
			WithContext("reference", reference)
	}
	if !verification.Amount.Equal(order.Total) {
		s.logger.Warn("Payment amount does not match order total",
			"orderID", orderID,
			"reference", reference,
			"expected", order.Total.StringFixed(2),
			"actual", verification.Amount.StringFixed(2))
		return nil, apperrors.NewPaymentNotVerifiedError("payment amount does not match order total").
			WithContext("orderId", orderID).
			WithContext("expected", order.Total.StringFixed(2)).
			WithContext("actual", verification.Amount.StringFixed(2))
	}

	paid := models.PaymentStatusPaid
	update := StatusUpdate{PaymentStatus: &paid, PaymentReference: reference}
	if order.OrderStatus.CanTransitionTo(models.OrderStatusPaid) {
		orderPaid := models.OrderStatusPaid
		update.OrderStatus = &orderPaid
	}

	updated, err := s.UpdateStatus(ctx, orderID, update)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment processed", "orderID", orderID, "reference", reference)
	return updated, nil
}

// CancelOrder moves the order to CANCELLED. Payment status is left as is;
// the order_cancelled event tells consumers whether a refund is owed.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*models.Order, error) {
	if len(reason) > maxCancelReasonLength {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("reason must be at most %d characters", maxCancelReasonLength))
	}

	cancelled := models.OrderStatusCancelled
	order, err := s.mutate(ctx, orderID, func(order *models.Order) ([]*models.OutboxMessage, error) {
		if order.OrderStatus == models.OrderStatusCancelled {
			return nil, apperrors.NewInvalidOperationError("order is already cancelled").
				WithContext("orderId", order.ID)
		}
		return s.apply(order, StatusUpdate{OrderStatus: &cancelled, CancelReason: reason})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order cancelled",
		"orderID", orderID,
		"paymentStatus", order.PaymentStatus,
		"refundRequired", order.PaymentStatus == models.PaymentStatusPaid)

	return order, nil
}

const maxCancelReasonLength = 500

type mutation func(order *models.Order) ([]*models.OutboxMessage, error)

// mutate runs a read-validate-write cycle. A version conflict is reported as
// the error the fresh state implies, or CONCURRENT_MODIFICATION if the change
// would still be valid.
func (s *OrderService) mutate(ctx context.Context, orderID string, fn mutation) (*models.Order, error) {
	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order := current.Clone()
	events, err := fn(order)
	if err != nil {
		return nil, err
	}
	if events == nil {
		return current, nil
	}

	err = s.store.Update(ctx, order, events...)
	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewOrderNotFoundError(orderID)
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, s.conflictError(ctx, orderID, fn)
	}

	s.logger.Error("Failed to update order", "error", err, "orderID", orderID)
	return nil, apperrors.NewOrderUpdateFailedError("failed to update order").
		WithContext("orderId", orderID)
}

func (s *OrderService) conflictError(ctx context.Context, orderID string, fn mutation) error {
	s.logger.Warn("Order modified concurrently", "orderID", orderID)

	fresh, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := fn(fresh.Clone()); err != nil {
		return err
	}

	return apperrors.NewConflictError("order was modified concurrently, retry the request").
		WithContext("orderId", orderID).
		WithContext("version", fresh.Version)
}

// apply validates update against order and, when both fields pass, writes it
// into order. It returns the events to publish, or nil when nothing changed.
func (s *OrderService) apply(order *models.Order, update StatusUpdate) ([]*models.OutboxMessage, error) {
	oldOrderStatus := order.OrderStatus
	oldPaymentStatus := order.PaymentStatus

	// A completed order cannot be cancelled, whichever route asks.
	if update.OrderStatus != nil && *update.OrderStatus == models.OrderStatusCancelled &&
		oldOrderStatus == models.OrderStatusCompleted {
		return nil, apperrors.NewInvalidOperationError("completed orders cannot be cancelled").
			WithContext("orderId", order.ID)
	}

	paymentChanged := update.PaymentStatus != nil
	if paymentChanged && !oldPaymentStatus.CanTransitionTo(*update.PaymentStatus) {
		return nil, apperrors.NewInvalidStateTransitionError("paymentStatus",
			string(oldPaymentStatus), string(*update.PaymentStatus)).
			WithContext("orderId", order.ID)
	}

	orderChanged := update.OrderStatus != nil && *update.OrderStatus != oldOrderStatus
	if orderChanged && !oldOrderStatus.CanTransitionTo(*update.OrderStatus) {
		return nil, apperrors.NewInvalidStateTransitionError("orderStatus",
			string(oldOrderStatus), string(*update.OrderStatus)).
			WithContext("orderId", order.ID)
	}

	if !paymentChanged && !orderChanged {
		return nil, nil
	}

	now := s.now()
	order.UpdatedAt = now

	if paymentChanged {
		order.PaymentStatus = *update.PaymentStatus
		if update.PaymentReference != "" {
			ref := update.PaymentReference
			order.PaymentReference = &ref
		}
	}
	if orderChanged {
		order.OrderStatus = *update.OrderStatus
	}

	if order.PaidAt == nil && (order.PaymentStatus == models.PaymentStatusPaid || order.OrderStatus == models.OrderStatusPaid) {
		order.PaidAt = &now
	}
	if order.CompletedAt == nil && order.OrderStatus == models.OrderStatusCompleted {
		order.CompletedAt = &now
	}
	if order.CancelledAt == nil && order.OrderStatus == models.OrderStatusCancelled {
		order.CancelledAt = &now
		if update.CancelReason != "" {
			reason := update.CancelReason
			order.CancelReason = &reason
		}
	}

	var events []*models.OutboxMessage
	if paymentChanged {
		event, err := models.NewPaymentStatusChangedEvent(order, oldPaymentStatus)
		if err != nil {
			return nil, s.eventError(order, err)
		}
		events = append(events, event)
	}
	if orderChanged {
		var (
			event *models.OutboxMessage
			err   error
		)
		if order.OrderStatus == models.OrderStatusCancelled {
			event, err = models.NewOrderCancelledEvent(order, oldOrderStatus)
		} else {
			event, err = models.NewOrderStatusChangedEvent(order, oldOrderStatus)
		}
		if err != nil {
			return nil, s.eventError(order, err)
		}
		events = append(events, event)
	}

	return events, nil
}

func (s *OrderService) eventError(order *models.Order, err error) error {
	s.logger.Error("Failed to create outbox message", "error", err, "orderID", order.ID)
	return apperrors.NewOrderUpdateFailedError("failed to create order event").
		WithContext("orderId", order.ID)
}

func (s *OrderService) loadError(orderID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewOrderNotFoundError(orderID)
	}
	s.logger.Error("Failed to load order", "error", err, "orderID", orderID)
	return apperrors.NewAppError(apperrors.ErrInternal, apperrors.CodeInternal,
		"failed to load order", http.StatusInternalServerError, false).WithContext("orderId", orderID)
}
