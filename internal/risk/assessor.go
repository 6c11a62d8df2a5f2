// Package risk scores orders for fraud risk before they are created.
package risk

import (
	"context"
	"errors"
	"strings"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/shopspring/decimal"
)

// ErrDisabled is returned by NoopAssessor. Callers treat it like any other
// assessment failure and proceed without risk data.
var ErrDisabled = errors.New("risk assessment disabled")

// Customer identifies who is placing the order
type Customer struct {
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	IsGuest   bool   `json:"isGuest"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// OrderSummary is the part of an order the rules look at
type OrderSummary struct {
	Total       decimal.Decimal `json:"total"`
	IsRush      bool            `json:"isRush"`
	ItemCount   int             `json:"itemCount"`
	MaxQuantity int             `json:"maxQuantity"`
}

// Assessor produces a risk assessment for an order about to be created
type Assessor interface {
	Assess(ctx context.Context, customer Customer, order OrderSummary) (models.RiskAssessment, error)
}

// NoopAssessor is used when risk assessment is turned off
type NoopAssessor struct{}

func (NoopAssessor) Assess(context.Context, Customer, OrderSummary) (models.RiskAssessment, error) {
	return models.RiskAssessment{}, ErrDisabled
}

// Rule weights
const (
	weightGuest          = 15
	weightRush           = 10
	weightHighTotal      = 15
	weightVeryHighTotal  = 20
	weightMissingIP      = 10
	weightDisposableMail = 25
	weightGuestFreeMail  = 5
	weightGuestNoPhone   = 5
	weightBulkQuantity   = 10
)

var (
	highTotal     = decimal.NewFromInt(1000)
	veryHighTotal = decimal.NewFromInt(2500)
)

const bulkQuantity = 10

var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"yopmail.com":       true,
	"trashmail.com":     true,
	"sharklasers.com":   true,
}

var freeMailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"aol.com":     true,
	"icloud.com":  true,
}

// RuleAssessor scores an order with a fixed set of weighted rules
type RuleAssessor struct{}

// NewRuleAssessor creates a RuleAssessor
func NewRuleAssessor() *RuleAssessor {
	return &RuleAssessor{}
}

func (a *RuleAssessor) Assess(_ context.Context, customer Customer, order OrderSummary) (models.RiskAssessment, error) {
	score, factors := Score(customer, order)
	return models.NewRiskAssessment(score, factors), nil
}

// Score returns the raw, unclamped rule score and the names of the rules that fired
func Score(customer Customer, order OrderSummary) (int, []string) {
	score := 0
	var factors []string

	add := func(weight int, factor string) {
		score += weight
		factors = append(factors, factor)
	}

	if customer.IsGuest {
		add(weightGuest, "guest_checkout")
	}
	if order.IsRush {
		add(weightRush, "rush_processing")
	}
	if order.Total.GreaterThan(highTotal) {
		add(weightHighTotal, "high_order_total")
	}
	if order.Total.GreaterThan(veryHighTotal) {
		add(weightVeryHighTotal, "very_high_order_total")
	}
	if strings.TrimSpace(customer.IPAddress) == "" {
		add(weightMissingIP, "missing_ip_address")
	}

	domain := emailDomain(customer.Email)
	if disposableDomains[domain] {
		add(weightDisposableMail, "disposable_email")
	}
	if customer.IsGuest && freeMailDomains[domain] {
		add(weightGuestFreeMail, "guest_free_email")
	}
	if customer.IsGuest && strings.TrimSpace(customer.Phone) == "" {
		add(weightGuestNoPhone, "guest_without_phone")
	}
	if order.MaxQuantity > bulkQuantity {
		add(weightBulkQuantity, "bulk_quantity")
	}

	return score, factors
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
