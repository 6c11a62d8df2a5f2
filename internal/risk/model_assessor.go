package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/circuitbreaker"
	apperrors "github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/retry"
)

// ModelAssessor refines the rule score with a hosted scoring model. When
// the model cannot be reached the rule assessment is returned unchanged.
type ModelAssessor struct {
	url         string
	apiKey      string
	httpClient  *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	retryConfig *retry.RetryConfig
	logger      logger.Logger
}

type modelRequest struct {
	Customer  Customer     `json:"customer"`
	Order     OrderSummary `json:"order"`
	RuleScore int          `json:"ruleScore"`
	Factors   []string     `json:"factors"`
}

// The model's own level, if it sends one, is ignored: the level is always
// derived from the clamped score.
type modelResponse struct {
	Score     *float64 `json:"score"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// NewModelAssessor creates an assessor calling the model endpoint at url
func NewModelAssessor(url, apiKey string, timeout time.Duration, logger logger.Logger) *ModelAssessor {
	return &ModelAssessor{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		}),
		retryConfig: &retry.RetryConfig{
			MaxAttempts:     2,
			BackoffStrategy: &retry.ConstantBackoff{Interval: 100 * time.Millisecond},
			Logger:          logger,
		},
		logger: logger,
	}
}

func (a *ModelAssessor) Assess(ctx context.Context, customer Customer, order OrderSummary) (models.RiskAssessment, error) {
	ruleScore, factors := Score(customer, order)
	base := models.NewRiskAssessment(ruleScore, factors)

	var resp *modelResponse
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Retry(ctx, func(ctx context.Context) error {
			r, err := a.callModel(ctx, modelRequest{
				Customer:  customer,
				Order:     order,
				RuleScore: base.RiskScore,
				Factors:   factors,
			})
			resp = r
			return err
		}, a.retryConfig)
	})

	if err != nil {
		a.logger.Warn("Risk model unavailable, using rule score",
			"error", err,
			"ruleScore", base.RiskScore,
			"breaker", a.breaker.GetState().String())
		return base, nil
	}

	if resp.Score == nil {
		a.logger.Warn("Risk model returned no score, using rule score", "ruleScore", base.RiskScore)
		return base, nil
	}

	raw := *resp.Score
	if raw < 0 || raw > 100 {
		a.logger.Warn("Risk model score out of range, clamping", "score", raw)
	}
	score := int(math.Round(math.Max(0, math.Min(100, raw))))

	if resp.Reasoning != "" {
		factors = append(factors, "model: "+resp.Reasoning)
	}

	return models.NewRiskAssessment(score, factors), nil
}

func (a *ModelAssessor) callModel(ctx context.Context, body modelRequest) (*modelResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	res, err := a.httpClient.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, apperrors.NewTimeoutError("risk model request timed out")
		}
		return nil, apperrors.NewTemporaryError(fmt.Sprintf("failed to call risk model: %v", err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, apperrors.NewTemporaryError(fmt.Sprintf("failed to read risk model response: %v", err))
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewRateLimitedError("risk model rate limited")
	case res.StatusCode >= 500:
		return nil, apperrors.NewTemporaryError(fmt.Sprintf("risk model error: %d", res.StatusCode))
	case res.StatusCode >= 400:
		return nil, apperrors.NewAppError(apperrors.ErrInternal, apperrors.CodeInternal,
			fmt.Sprintf("risk model rejected request: %d", res.StatusCode), res.StatusCode, false)
	}

	var out modelResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrInternal, apperrors.CodeInternal,
			fmt.Sprintf("failed to parse risk model response: %v", err), http.StatusBadGateway, false)
	}

	return &out, nil
}
