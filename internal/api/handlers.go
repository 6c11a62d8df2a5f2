package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/service"
	apperrors "github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/middleware"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the error half of ApiResponse
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type paymentRequest struct {
	PaymentReference string `json:"paymentReference"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// healthCheckHandler handles the health check endpoint
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.health.Ping(ctx); err != nil {
			s.logger.Error("Health check failed", "error", err)
			health.Status = "unavailable"
			s.respondWithJSON(w, http.StatusServiceUnavailable, ApiResponse{Success: false, Data: health})
			return
		}
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: health})
}

// createOrderHandler creates a new order
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var input service.CreateOrderInput
	if err := s.decode(w, r, &input); err != nil {
		s.respondWithError(w, err)
		return
	}

	input.IPAddress = middleware.ClientIP(r, s.trustForwardedFor)

	order, err := s.orders.CreateOrder(r.Context(), input)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: order})
}

// listOrdersHandler returns one page of orders, newest first
func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := service.ListOrdersInput{
		Cursor:        query.Get("cursor"),
		UserID:        query.Get("userId"),
		OrderStatus:   models.OrderStatus(query.Get("orderStatus")),
		PaymentStatus: models.PaymentStatus(query.Get("paymentStatus")),
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.respondWithError(w, apperrors.NewValidationError("limit must be an integer").
				WithContext("limit", raw))
			return
		}
		input.Limit = limit
	}

	page, err := s.orders.ListOrders(r.Context(), input)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: page})
}

// getOrderHandler returns an order by ID
func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// updateOrderStatusHandler changes order and/or payment status
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var update service.StatusUpdate
	if err := s.decode(w, r, &update); err != nil {
		s.respondWithError(w, err)
		return
	}

	order, err := s.orders.UpdateStatus(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// processPaymentHandler records a payment after verifying it with the gateway
func (s *Server) processPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondWithError(w, err)
		return
	}

	order, err := s.orders.ProcessPayment(r.Context(), mux.Vars(r)["id"], req.PaymentReference)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// cancelOrderHandler cancels an order. The body is optional.
func (s *Server) cancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := s.decodeBody(w, r, &req, false); err != nil {
		s.respondWithError(w, err)
		return
	}

	order, err := s.orders.CancelOrder(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		s.respondWithError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// decode reads a JSON body into v
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return s.decodeBody(w, r, v, true)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, required bool) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if !required {
				return nil
			}
			return apperrors.NewValidationError("request body is required")
		}
		return apperrors.NewValidationError("invalid request payload")
	}
	return nil
}

// respondWithError renders err as an error response. Errors that are not
// AppErrors are logged and hidden behind a generic 500.
func (s *Server) respondWithError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		s.logger.Error("Unhandled error", "error", err)
		appErr = apperrors.NewInternalError("internal server error")
	}

	s.respondWithJSON(w, appErr.StatusCode, ApiResponse{
		Success: false,
		Error: &ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Error(),
			Context: appErr.Context,
		},
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
