package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the fulfillment status of an order
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusPaymentRequired  OrderStatus = "PAYMENT_REQUIRED"
	OrderStatusPaid             OrderStatus = "PAID"
	OrderStatusInReview         OrderStatus = "IN_REVIEW"
	OrderStatusSubmittedToState OrderStatus = "SUBMITTED_TO_STATE"
	OrderStatusApproved         OrderStatus = "APPROVED"
	OrderStatusCompleted        OrderStatus = "COMPLETED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
)

// PaymentStatus represents the payment status of an order
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// ServiceType identifies the filing service purchased by a line item
type ServiceType string

const (
	ServiceLLCFormation         ServiceType = "LLC_FORMATION"
	ServiceCorporationFormation ServiceType = "CORPORATION_FORMATION"
	ServiceDBARegistration      ServiceType = "DBA_REGISTRATION"
	ServiceAnnualReport         ServiceType = "ANNUAL_REPORT"
	ServiceRegisteredAgent      ServiceType = "REGISTERED_AGENT"
	ServiceOther                ServiceType = "OTHER"
)

// Order represents a purchase of one or more legal filing services
type Order struct {
	ID          string `db:"id" json:"id"`
	OrderNumber string `db:"order_number" json:"orderNumber"`

	UserID       *string `db:"user_id" json:"userId,omitempty"`
	IsGuestOrder bool    `db:"is_guest_order" json:"isGuestOrder"`
	GuestEmail   *string `db:"guest_email" json:"guestEmail,omitempty"`
	GuestName    *string `db:"guest_name" json:"guestName,omitempty"`
	GuestPhone   *string `db:"guest_phone" json:"guestPhone,omitempty"`

	Subtotal decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax      decimal.Decimal `db:"tax" json:"tax"`
	Total    decimal.Decimal `db:"total" json:"total"`
	IsRush   bool            `db:"is_rush" json:"isRush"`

	OrderStatus      OrderStatus   `db:"order_status" json:"orderStatus"`
	PaymentStatus    PaymentStatus `db:"payment_status" json:"paymentStatus"`
	PaymentReference *string       `db:"payment_reference" json:"paymentReference,omitempty"`
	CancelReason     *string       `db:"cancel_reason" json:"cancelReason,omitempty"`

	RiskScore      *int    `db:"risk_score" json:"riskScore,omitempty"`
	RiskLevel      *string `db:"risk_level" json:"riskLevel,omitempty"`
	RequiresReview bool    `db:"requires_review" json:"requiresReview"`

	Version     int        `db:"version" json:"version"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	PaidAt      *time.Time `db:"paid_at" json:"paidAt,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`

	Items []OrderItem `db:"-" json:"items"`
}

// OrderItem is a single purchased service on an order
type OrderItem struct {
	ID          string          `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"orderId"`
	Position    int             `db:"position" json:"-"`
	ServiceType ServiceType     `db:"service_type" json:"serviceType"`
	Description string          `db:"description" json:"description"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"totalPrice"`
}

// NewOrder creates a pending order with generated identifiers. Items get
// their ids and positions assigned here.
func NewOrder(now time.Time, subtotal, tax, total decimal.Decimal, items []OrderItem) *Order {
	order := &Order{
		ID:            GenerateID("ord"),
		OrderNumber:   GenerateOrderNumber(now),
		Subtotal:      subtotal,
		Tax:           tax,
		Total:         total,
		OrderStatus:   OrderStatusPending,
		PaymentStatus: PaymentStatusPending,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	order.Items = make([]OrderItem, len(items))
	for i, item := range items {
		item.ID = GenerateID("itm")
		item.OrderID = order.ID
		item.Position = i
		order.Items[i] = item
	}

	return order
}

// CustomerKey returns the user id for registered orders and the guest email otherwise
func (o *Order) CustomerKey() string {
	if o.IsGuestOrder {
		return deref(o.GuestEmail)
	}
	return deref(o.UserID)
}

// Clone copies the order and its items. Pointer fields are shared and must be
// replaced, not written through.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

// IsValid reports whether s is a known service type
func (s ServiceType) IsValid() bool {
	switch s {
	case ServiceLLCFormation, ServiceCorporationFormation, ServiceDBARegistration,
		ServiceAnnualReport, ServiceRegisteredAgent, ServiceOther:
		return true
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
