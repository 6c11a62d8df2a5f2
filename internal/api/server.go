package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/config"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/repository"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/service"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/middleware"
	"github.com/gorilla/mux"
)

// OrderService is the order lifecycle as seen by the HTTP layer
type OrderService interface {
	CreateOrder(ctx context.Context, input service.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, input service.ListOrdersInput) (*repository.OrderPage, error)
	UpdateStatus(ctx context.Context, orderID string, update service.StatusUpdate) (*models.Order, error)
	ProcessPayment(ctx context.Context, orderID, reference string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*models.Order, error)
}

// DeadLetterStore lists and resolves events that could not be published
type DeadLetterStore interface {
	List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error)
	Requeue(ctx context.Context, id int64) (*models.OutboxMessage, error)
	Discard(ctx context.Context, id int64) error
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the server routes requests to
type Dependencies struct {
	Orders      OrderService
	DeadLetters DeadLetterStore
	// Health is optional
	Health HealthChecker
}

type Server struct {
	logger            logger.Logger
	router            *mux.Router
	httpServer        *http.Server
	orders            OrderService
	deadLetters       DeadLetterStore
	health            HealthChecker
	rateLimiter       *middleware.RateLimiterMiddleware
	trustForwardedFor bool
}

// NewServer creates the HTTP server and its routes
func NewServer(cfg *config.Config, deps Dependencies, logger logger.Logger) *Server {
	r := mux.NewRouter()

	s := &Server{
		logger:      logger,
		router:      r,
		orders:      deps.Orders,
		deadLetters: deps.DeadLetters,
		health:      deps.Health,
		rateLimiter: middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		}, logger),
		trustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	s.setupRoutes()
	return s
}

// Handler returns the router with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logging(s.logger))

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health checks are not rate limited.
	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	orders := api.PathPrefix("/orders").Subrouter()
	orders.Use(s.rateLimiter.Middleware)
	orders.HandleFunc("", s.listOrdersHandler).Methods(http.MethodGet)
	orders.HandleFunc("", s.createOrderHandler).Methods(http.MethodPost)
	orders.HandleFunc("/{id}", s.getOrderHandler).Methods(http.MethodGet)
	orders.HandleFunc("/{id}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch)
	orders.HandleFunc("/{id}/payments", s.processPaymentHandler).Methods(http.MethodPost)
	orders.HandleFunc("/{id}/cancel", s.cancelOrderHandler).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/dead-letters/{id}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters/{id}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)
}
