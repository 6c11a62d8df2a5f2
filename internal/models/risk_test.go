package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskLevelBoundaries(t *testing.T) {
	tests := []struct {
		score  int
		level  RiskLevel
		rec    Recommendation
		review bool
	}{
		{0, RiskLevelLow, RecommendApprove, false},
		{25, RiskLevelLow, RecommendApprove, false},
		{26, RiskLevelMedium, RecommendReview, false},
		{50, RiskLevelMedium, RecommendReview, false},
		{51, RiskLevelHigh, RecommendVerify, true},
		{75, RiskLevelHigh, RecommendVerify, true},
		{76, RiskLevelCritical, RecommendDecline, true},
		{100, RiskLevelCritical, RecommendDecline, true},
	}

	for _, tt := range tests {
		a := NewRiskAssessment(tt.score, nil)
		assert.Equal(t, tt.score, a.RiskScore)
		assert.Equalf(t, tt.level, a.RiskLevel, "score %d", tt.score)
		assert.Equalf(t, tt.rec, a.Recommendation, "score %d", tt.score)
		assert.Equalf(t, tt.review, a.RequiresReview, "score %d", tt.score)
	}
}

func TestRiskScoreIsClamped(t *testing.T) {
	for _, raw := range []int{-1000, -1, 101, 140, 1 << 20} {
		a := NewRiskAssessment(raw, nil)
		assert.GreaterOrEqual(t, a.RiskScore, 0)
		assert.LessOrEqual(t, a.RiskScore, 100)

		level, rec := RiskLevelFor(a.RiskScore)
		assert.Equal(t, level, a.RiskLevel)
		assert.Equal(t, rec, a.Recommendation)
	}

	a := NewRiskAssessment(140, nil)
	assert.Equal(t, 100, a.RiskScore)
	assert.Equal(t, RiskLevelCritical, a.RiskLevel)
	assert.True(t, a.RequiresReview)
}
