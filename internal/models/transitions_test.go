package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatusTransitions(t *testing.T) {
	allowed := map[PaymentStatus][]PaymentStatus{
		PaymentStatusPending:  {PaymentStatusPaid, PaymentStatusFailed},
		PaymentStatusPaid:     {PaymentStatusRefunded},
		PaymentStatusFailed:   {PaymentStatusPending},
		PaymentStatusRefunded: {},
	}

	for _, from := range AllPaymentStatuses {
		for _, to := range AllPaymentStatuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestRefundedIsTerminal(t *testing.T) {
	assert.True(t, PaymentStatusRefunded.IsTerminal())
	for _, to := range AllPaymentStatuses {
		assert.False(t, PaymentStatusRefunded.CanTransitionTo(to))
	}
}

func TestOrderStatusTerminalStates(t *testing.T) {
	for _, from := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled} {
		assert.True(t, from.IsTerminal())
		for _, to := range AllOrderStatuses {
			assert.Falsef(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusPaid, OrderStatusSubmittedToState, true},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusInReview, OrderStatusPaid, true},
		{OrderStatusSubmittedToState, OrderStatusApproved, true},
		{OrderStatusApproved, OrderStatusCompleted, true},
		{OrderStatusApproved, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestUnknownStatusesAreInvalid(t *testing.T) {
	assert.False(t, PaymentStatus("SETTLED").IsValid())
	assert.False(t, OrderStatus("SHIPPED").IsValid())
	assert.False(t, PaymentStatus("SETTLED").CanTransitionTo(PaymentStatusPaid))
}
