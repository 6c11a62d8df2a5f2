package models

// AllPaymentStatuses lists every payment status in declaration order
var AllPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// AllOrderStatuses lists every order status in declaration order
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaymentRequired,
	OrderStatusPaid,
	OrderStatusInReview,
	OrderStatusSubmittedToState,
	OrderStatusApproved,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// IsValid reports whether s is a known payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the payment status may move to next.
// Moving to the same status is not an edge.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusPaid || next == PaymentStatusFailed
	case PaymentStatusPaid:
		return next == PaymentStatusRefunded
	case PaymentStatusFailed:
		return next == PaymentStatusPending
	case PaymentStatusRefunded:
		return false
	}
	return false
}

// IsTerminal reports whether no payment transition leaves s
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusRefunded
}

// IsValid reports whether s is a known order status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaymentRequired, OrderStatusPaid, OrderStatusInReview,
		OrderStatusSubmittedToState, OrderStatusApproved, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the order status may move to next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return oneOf(next, OrderStatusPaymentRequired, OrderStatusPaid, OrderStatusInReview, OrderStatusCancelled)
	case OrderStatusPaymentRequired:
		return oneOf(next, OrderStatusPaid, OrderStatusInReview, OrderStatusCancelled)
	case OrderStatusPaid:
		return oneOf(next, OrderStatusInReview, OrderStatusSubmittedToState, OrderStatusCancelled)
	case OrderStatusInReview:
		return oneOf(next, OrderStatusPaymentRequired, OrderStatusPaid, OrderStatusSubmittedToState, OrderStatusCancelled)
	case OrderStatusSubmittedToState:
		return oneOf(next, OrderStatusApproved, OrderStatusCancelled)
	case OrderStatusApproved:
		return oneOf(next, OrderStatusCompleted, OrderStatusCancelled)
	case OrderStatusCompleted, OrderStatusCancelled:
		return false
	}
	return false
}

// IsTerminal reports whether no order transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func oneOf(s OrderStatus, allowed ...OrderStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
