package risk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registered() Customer {
	return Customer{UserID: "u1", Email: "owner@acme-law.com", IPAddress: "203.0.113.7"}
}

func smallOrder() OrderSummary {
	return OrderSummary{Total: decimal.NewFromInt(225), ItemCount: 1, MaxQuantity: 1}
}

func TestRuleAssessorLowRisk(t *testing.T) {
	a, err := NewRuleAssessor().Assess(context.Background(), registered(), smallOrder())
	require.NoError(t, err)

	assert.Equal(t, 0, a.RiskScore)
	assert.Equal(t, models.RiskLevelLow, a.RiskLevel)
	assert.Equal(t, models.RecommendApprove, a.Recommendation)
	assert.False(t, a.RequiresReview)
}

func TestRuleScoreFactors(t *testing.T) {
	tests := []struct {
		name     string
		customer Customer
		order    OrderSummary
		score    int
		factor   string
	}{
		{"guest", Customer{IsGuest: true, Email: "a@acme.com", Phone: "555", IPAddress: "1.1.1.1"}, smallOrder(), 15, "guest_checkout"},
		{"rush", registered(), OrderSummary{Total: decimal.NewFromInt(225), IsRush: true}, 10, "rush_processing"},
		{"high total", registered(), OrderSummary{Total: decimal.NewFromInt(1500)}, 15, "high_order_total"},
		{"very high total", registered(), OrderSummary{Total: decimal.NewFromInt(3000)}, 35, "very_high_order_total"},
		{"missing ip", Customer{UserID: "u1"}, smallOrder(), 10, "missing_ip_address"},
		{"disposable", Customer{UserID: "u1", Email: "x@Mailinator.com", IPAddress: "1.1.1.1"}, smallOrder(), 25, "disposable_email"},
		{"bulk", registered(), OrderSummary{Total: decimal.NewFromInt(225), MaxQuantity: 11}, 10, "bulk_quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, factors := Score(tt.customer, tt.order)
			assert.Equal(t, tt.score, score)
			assert.Contains(t, factors, tt.factor)
		})
	}
}

func TestRuleScoreIsClampedAtHundred(t *testing.T) {
	customer := Customer{IsGuest: true, Email: "x@yopmail.com"}
	order := OrderSummary{Total: decimal.NewFromInt(9000), IsRush: true, MaxQuantity: 50}

	raw, _ := Score(customer, order)
	require.Greater(t, raw, 100)

	a, err := NewRuleAssessor().Assess(context.Background(), customer, order)
	require.NoError(t, err)
	assert.Equal(t, 100, a.RiskScore)
	assert.Equal(t, models.RiskLevelCritical, a.RiskLevel)
	assert.True(t, a.RequiresReview)
}

func TestNoopAssessorFails(t *testing.T) {
	_, err := NoopAssessor{}.Assess(context.Background(), registered(), smallOrder())
	assert.ErrorIs(t, err, ErrDisabled)
}

func modelServer(t *testing.T, handler http.HandlerFunc) *ModelAssessor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := NewModelAssessor(srv.URL, "secret", time.Second, logger.NewNop())
	a.retryConfig.BackoffStrategy = nil
	return a
}

func TestModelScoreIsClamped(t *testing.T) {
	a := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req modelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0, req.RuleScore)

		_, _ = w.Write([]byte(`{"score": 140, "level": "LOW", "reasoning": "velocity"}`))
	})

	result, err := a.Assess(context.Background(), registered(), smallOrder())
	require.NoError(t, err)

	assert.Equal(t, 100, result.RiskScore)
	assert.Equal(t, models.RiskLevelCritical, result.RiskLevel)
	assert.Equal(t, models.RecommendDecline, result.Recommendation)
	assert.True(t, result.RequiresReview)
	assert.Contains(t, result.Factors, "model: velocity")
}

func TestModelNegativeScoreIsClamped(t *testing.T) {
	a := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score": -20}`))
	})

	result, err := a.Assess(context.Background(), registered(), smallOrder())
	require.NoError(t, err)
	assert.Equal(t, 0, result.RiskScore)
	assert.Equal(t, models.RiskLevelLow, result.RiskLevel)
}

func TestModelFractionalScoreIsRounded(t *testing.T) {
	var calls int32
	a := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"score": 72.5}`))
	})

	result, err := a.Assess(context.Background(), registered(), smallOrder())
	require.NoError(t, err)
	assert.Equal(t, 73, result.RiskScore)
	assert.Equal(t, models.RiskLevelHigh, result.RiskLevel)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestModelFailureFallsBackToRules(t *testing.T) {
	var calls int32
	a := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	guest := Customer{IsGuest: true, Email: "a@acme.com", Phone: "555", IPAddress: "1.1.1.1"}
	result, err := a.Assess(context.Background(), guest, smallOrder())
	require.NoError(t, err)

	assert.Equal(t, 15, result.RiskScore)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "temporary errors are retried")
}

func TestModelClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	a := modelServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	result, err := a.Assess(context.Background(), registered(), smallOrder())
	require.NoError(t, err)
	assert.Equal(t, 0, result.RiskScore)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
