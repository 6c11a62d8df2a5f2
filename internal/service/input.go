package service

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	apperrors "github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// CreateOrderInput is the data needed to create an order. Exactly one of
// UserID and GuestEmail identifies the customer.
type CreateOrderInput struct {
	UserID     string `json:"userId" validate:"omitempty,max=64"`
	GuestEmail string `json:"guestEmail" validate:"omitempty,email,max=254"`
	GuestName  string `json:"guestName" validate:"omitempty,max=200"`
	GuestPhone string `json:"guestPhone" validate:"omitempty,max=32"`

	Items []CreateOrderItem `json:"items" validate:"required,min=1,max=50,dive"`

	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	IsRush   bool            `json:"isRush"`

	// IPAddress is filled in by the transport, never decoded from the body
	IPAddress string `json:"-"`
}

// CreateOrderItem is one line of CreateOrderInput. A zero TotalPrice is
// computed from UnitPrice and Quantity.
type CreateOrderItem struct {
	ServiceType models.ServiceType `json:"serviceType" validate:"required"`
	Description string             `json:"description" validate:"required,max=500"`
	Quantity    int                `json:"quantity" validate:"min=1,max=1000"`
	UnitPrice   decimal.Decimal    `json:"unitPrice"`
	TotalPrice  decimal.Decimal    `json:"totalPrice"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the input and returns a VALIDATION_ERROR describing the
// first problem found.
func (in *CreateOrderInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return validationError(err)
	}

	hasUser := strings.TrimSpace(in.UserID) != ""
	hasGuest := strings.TrimSpace(in.GuestEmail) != ""
	switch {
	case hasUser && hasGuest:
		return apperrors.NewValidationError("an order belongs to either a user or a guest, not both")
	case !hasUser && !hasGuest:
		return apperrors.NewValidationError("userId or guestEmail is required")
	case hasUser && (in.GuestName != "" || in.GuestPhone != ""):
		return apperrors.NewValidationError("guest contact fields are only allowed on guest orders")
	}

	subtotal := decimal.Zero
	for i, item := range in.Items {
		if !item.ServiceType.IsValid() {
			return apperrors.NewValidationError("unknown service type").
				WithContext("field", fmt.Sprintf("items[%d].serviceType", i)).
				WithContext("serviceType", item.ServiceType)
		}
		if item.UnitPrice.IsNegative() {
			return apperrors.NewValidationError("unit price must not be negative").
				WithContext("field", fmt.Sprintf("items[%d].unitPrice", i))
		}

		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if !item.TotalPrice.IsZero() && !item.TotalPrice.Equal(line) {
			return apperrors.NewValidationError("item total does not equal unit price times quantity").
				WithContext("field", fmt.Sprintf("items[%d].totalPrice", i)).
				WithContext("expected", line.StringFixed(2))
		}
		subtotal = subtotal.Add(line)
	}

	if in.Tax.IsNegative() {
		return apperrors.NewValidationError("tax must not be negative")
	}
	if !in.Subtotal.Equal(subtotal) {
		return apperrors.NewValidationError("subtotal does not equal the sum of item totals").
			WithContext("expected", subtotal.StringFixed(2))
	}
	if !in.Total.Equal(in.Subtotal.Add(in.Tax)) {
		return apperrors.NewValidationError("total must equal subtotal plus tax").
			WithContext("expected", in.Subtotal.Add(in.Tax).StringFixed(2))
	}
	if !in.Total.IsPositive() {
		return apperrors.NewValidationError("total must be greater than zero")
	}

	return nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return apperrors.NewValidationError(err.Error())
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "CreateOrderInput.")

	msg := fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "email":
		msg = field + " must be a valid email address"
	case "min", "max":
		msg = fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}

	return apperrors.NewValidationError(msg).WithContext("field", field)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (in *CreateOrderInput) toOrder(now time.Time) *models.Order {
	items := make([]models.OrderItem, len(in.Items))
	for i, item := range in.Items {
		items[i] = models.OrderItem{
			ServiceType: item.ServiceType,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		}
	}

	order := models.NewOrder(now, in.Subtotal, in.Tax, in.Total, items)
	order.IsRush = in.IsRush

	if email := optional(in.GuestEmail); email != nil {
		order.IsGuestOrder = true
		order.GuestEmail = email
		order.GuestName = optional(in.GuestName)
		order.GuestPhone = optional(in.GuestPhone)
	} else {
		order.UserID = optional(in.UserID)
	}

	return order
}
