package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/retry"
	"github.com/shopspring/decimal"
)

// PaymentStatusSucceeded is the gateway status of a settled payment
const PaymentStatusSucceeded = "succeeded"

// Verification is the outcome of looking up a payment reference
type Verification struct {
	Verified bool
	Amount   decimal.Decimal
	Currency string
}

// PaymentResponse represents the gateway's payment lookup response
type PaymentResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Error    string          `json:"error,omitempty"`
	Code     string          `json:"code,omitempty"`
}

// PaymentClient verifies payment references against the payment gateway
type PaymentClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logger      logger.Logger
	retryConfig *retry.RetryConfig
}

// NewPaymentClient creates a new PaymentClient instance
func NewPaymentClient(baseURL, apiKey string, timeout time.Duration, logger logger.Logger) *PaymentClient {
	httpClient := &http.Client{
		Timeout: timeout,
	}

	retryConfig := &retry.RetryConfig{
		MaxAttempts: 3,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      1.5,
			JitterFactor:    0.2,
		},
		Logger: logger,
		RetryableErrors: []error{
			errors.ErrTimeout,
			errors.ErrTemporaryFailure,
			errors.ErrServiceUnavailable,
		},
	}

	return &PaymentClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		httpClient:  httpClient,
		logger:      logger,
		retryConfig: retryConfig,
	}
}

// VerifyPayment looks up a payment reference. An unknown reference or a
// payment that has not succeeded is reported as Verified false, not as an error.
func (c *PaymentClient) VerifyPayment(ctx context.Context, reference string) (Verification, error) {
	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(reference))

	var (
		response *PaymentResponse
		notFound bool
	)

	retryFunc := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
		}

		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return errors.NewTimeoutError("payment lookup timed out")
			}
			return errors.NewTemporaryError(fmt.Sprintf("failed to send request: %v", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.NewTemporaryError(fmt.Sprintf("failed to read response body: %v", err))
		}

		if resp.StatusCode == http.StatusNotFound {
			notFound = true
			return nil
		}

		if resp.StatusCode >= 400 {
			if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout {
				return errors.NewTimeoutError("payment lookup timed out")
			}

			if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusInternalServerError ||
				resp.StatusCode == http.StatusBadGateway {
				return errors.NewTemporaryError(fmt.Sprintf("payment gateway error: %d", resp.StatusCode))
			}

			return errors.NewAppError(
				errors.ErrInternal,
				errors.CodeInternal,
				fmt.Sprintf("payment gateway returned error: %d", resp.StatusCode),
				resp.StatusCode,
				false,
			)
		}

		response = &PaymentResponse{}
		if err := json.Unmarshal(body, response); err != nil {
			return errors.NewInternalError(fmt.Sprintf("failed to parse response: %v", err))
		}

		if response.Error != "" {
			if response.Code == "TIMEOUT" {
				return errors.NewTimeoutError(response.Error)
			}
			return errors.NewTemporaryError(response.Error)
		}

		return nil
	}

	if err := retry.Retry(ctx, retryFunc, c.retryConfig); err != nil {
		c.logger.Error("Failed to verify payment after retries",
			"error", err,
			"reference", reference)
		return Verification{}, err
	}

	if notFound {
		c.logger.Warn("Payment reference not found", "reference", reference)
		return Verification{Verified: false}, nil
	}

	if response.Status != PaymentStatusSucceeded {
		c.logger.Info("Payment not settled",
			"reference", reference,
			"status", response.Status)
		return Verification{Verified: false, Amount: response.Amount, Currency: response.Currency}, nil
	}

	return Verification{Verified: true, Amount: response.Amount, Currency: response.Currency}, nil
}
