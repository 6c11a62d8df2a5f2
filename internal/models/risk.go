package models

// RiskLevel is the coarse label derived from a risk score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// Recommendation is the action suggested for a risk level
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendVerify  Recommendation = "VERIFY"
	RecommendDecline Recommendation = "DECLINE"
)

const (
	MinRiskScore    = 0
	MaxRiskScore    = 100
	ReviewThreshold = 51
)

// RiskAssessment is the outcome of scoring an order
type RiskAssessment struct {
	RiskScore      int            `json:"riskScore"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Recommendation Recommendation `json:"recommendation"`
	RequiresReview bool           `json:"requiresReview"`
	Factors        []string       `json:"factors,omitempty"`
}

// ClampRiskScore forces score into [0,100]
func ClampRiskScore(score int) int {
	if score < MinRiskScore {
		return MinRiskScore
	}
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}

// RiskLevelFor maps a clamped score to its level and recommendation
func RiskLevelFor(score int) (RiskLevel, Recommendation) {
	switch score = ClampRiskScore(score); {
	case score <= 25:
		return RiskLevelLow, RecommendApprove
	case score <= 50:
		return RiskLevelMedium, RecommendReview
	case score <= 75:
		return RiskLevelHigh, RecommendVerify
	default:
		return RiskLevelCritical, RecommendDecline
	}
}

// NewRiskAssessment clamps score and derives every other field from it
func NewRiskAssessment(score int, factors []string) RiskAssessment {
	score = ClampRiskScore(score)
	level, rec := RiskLevelFor(score)

	return RiskAssessment{
		RiskScore:      score,
		RiskLevel:      level,
		Recommendation: rec,
		RequiresReview: score >= ReviewThreshold,
		Factors:        factors,
	}
}
