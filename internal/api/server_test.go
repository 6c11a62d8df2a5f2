package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/config"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/repository"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/service"
	apperrors "github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	order *models.Order
	page  *repository.OrderPage
	err   error

	created   service.CreateOrderInput
	listed    service.ListOrdersInput
	updated   service.StatusUpdate
	orderID   string
	reference string
	reason    string
}

func (f *fakeOrders) CreateOrder(_ context.Context, input service.CreateOrderInput) (*models.Order, error) {
	f.created = input
	return f.order, f.err
}

func (f *fakeOrders) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	f.orderID = orderID
	return f.order, f.err
}

func (f *fakeOrders) ListOrders(_ context.Context, input service.ListOrdersInput) (*repository.OrderPage, error) {
	f.listed = input
	return f.page, f.err
}

func (f *fakeOrders) UpdateStatus(_ context.Context, orderID string, update service.StatusUpdate) (*models.Order, error) {
	f.orderID = orderID
	f.updated = update
	return f.order, f.err
}

func (f *fakeOrders) ProcessPayment(_ context.Context, orderID, reference string) (*models.Order, error) {
	f.orderID = orderID
	f.reference = reference
	return f.order, f.err
}

func (f *fakeOrders) CancelOrder(_ context.Context, orderID, reason string) (*models.Order, error) {
	f.orderID = orderID
	f.reason = reason
	return f.order, f.err
}

type fakeDeadLetters struct {
	messages []*models.DeadLetterMessage
	err      error

	status        models.DeadLetterStatus
	limit, offset int
	requeued      int64
	discarded     int64
}

func (f *fakeDeadLetters) List(_ context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	f.status, f.limit, f.offset = status, limit, offset
	return f.messages, f.err
}

func (f *fakeDeadLetters) Requeue(_ context.Context, id int64) (*models.OutboxMessage, error) {
	f.requeued = id
	if f.err != nil {
		return nil, f.err
	}
	return &models.OutboxMessage{ID: 900}, nil
}

func (f *fakeDeadLetters) Discard(_ context.Context, id int64) error {
	f.discarded = id
	return f.err
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func testConfig() *config.Config {
	cfg := &config.Config{Port: 8080}
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, deps Dependencies) *Server {
	t.Helper()
	s := NewServer(cfg, deps, logger.NewNop())
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	r.RemoteAddr = "198.51.100.7:40000"

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:            "ord_1",
		OrderNumber:   "LO-0001",
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(), Dependencies{Health: pinger{}})

	w, env := do(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}

func TestHealthReportsDatabaseDown(t *testing.T) {
	s := newTestServer(t, testConfig(), Dependencies{Health: pinger{err: errors.New("connection refused")}})

	w, env := do(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
}

func TestCreateOrder(t *testing.T) {
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	body := `{"userId":"user_1","items":[{"serviceType":"LLC_FORMATION","description":"Florida LLC","quantity":1,"unitPrice":"125.00"}],"subtotal":"125.00","tax":"0","total":"125.00","isRush":true}`
	w, env := do(t, s, http.MethodPost, "/api/v1/orders", body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"id":"ord_1"`)

	assert.Equal(t, "user_1", orders.created.UserID)
	assert.True(t, orders.created.IsRush)
	require.Len(t, orders.created.Items, 1)
	assert.Equal(t, "125", orders.created.Items[0].UnitPrice.String())
	assert.Equal(t, "198.51.100.7", orders.created.IPAddress)
}

func TestCreateOrderIgnoresIPAddressInBody(t *testing.T) {
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	do(t, s, http.MethodPost, "/api/v1/orders", `{"userId":"user_1","IPAddress":"10.9.9.9"}`)
	assert.Equal(t, "198.51.100.7", orders.created.IPAddress)
}

func TestCreateOrderUsesForwardedForWhenTrusted(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.TrustForwardedFor = true
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, cfg, Dependencies{Orders: orders})

	r := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	s.Handler().ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "203.0.113.9", orders.created.IPAddress)
}

func TestCreateOrderRejectsMalformedJSON(t *testing.T) {
	orders := &fakeOrders{}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, env := do(t, s, http.MethodPost, "/api/v1/orders", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperrors.CodeValidation, env.Error.Code)
}

func TestServiceErrorsAreRendered(t *testing.T) {
	orders := &fakeOrders{err: apperrors.NewInvalidStateTransitionError("paymentStatus", "PAID", "PENDING").
		WithContext("orderId", "ord_1")}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, env := do(t, s, http.MethodPatch, "/api/v1/orders/ord_1/status", `{"paymentStatus":"PENDING"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperrors.CodeInvalidStateTransition, env.Error.Code)
	assert.Equal(t, "PAID", env.Error.Context["currentStatus"])
	assert.Equal(t, "ord_1", env.Error.Context["orderId"])
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	orders := &fakeOrders{err: errors.New("pq: relation \"orders\" does not exist")}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, env := do(t, s, http.MethodGet, "/api/v1/orders/ord_1", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperrors.CodeInternal, env.Error.Code)
	assert.NotContains(t, env.Error.Message, "relation")
}

func TestGetOrderNotFound(t *testing.T) {
	orders := &fakeOrders{err: apperrors.NewOrderNotFoundError("ord_missing")}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, env := do(t, s, http.MethodGet, "/api/v1/orders/ord_missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ord_missing", orders.orderID)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperrors.CodeOrderNotFound, env.Error.Code)
}

func TestListOrdersPassesFilters(t *testing.T) {
	orders := &fakeOrders{page: &repository.OrderPage{
		Orders:     []*models.Order{sampleOrder()},
		NextCursor: "next",
	}}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, env := do(t, s, http.MethodGet,
		"/api/v1/orders?cursor=abc&limit=5&userId=user_1&orderStatus=PAID&paymentStatus=PAID", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"nextCursor":"next"`)
	assert.Equal(t, service.ListOrdersInput{
		Cursor:        "abc",
		Limit:         5,
		UserID:        "user_1",
		OrderStatus:   models.OrderStatusPaid,
		PaymentStatus: models.PaymentStatusPaid,
	}, orders.listed)
}

func TestListOrdersRejectsBadLimit(t *testing.T) {
	s := newTestServer(t, testConfig(), Dependencies{Orders: &fakeOrders{}})

	w, env := do(t, s, http.MethodGet, "/api/v1/orders?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeValidation, env.Error.Code)
}

func TestUpdateStatusDecodesBothFields(t *testing.T) {
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, _ := do(t, s, http.MethodPatch, "/api/v1/orders/ord_1/status",
		`{"orderStatus":"PAID","paymentStatus":"PAID"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ord_1", orders.orderID)
	require.NotNil(t, orders.updated.OrderStatus)
	require.NotNil(t, orders.updated.PaymentStatus)
	assert.Equal(t, models.OrderStatusPaid, *orders.updated.OrderStatus)
	assert.Equal(t, models.PaymentStatusPaid, *orders.updated.PaymentStatus)
}

func TestUpdateStatusRequiresBody(t *testing.T) {
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, env := do(t, s, http.MethodPatch, "/api/v1/orders/ord_1/status", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeValidation, env.Error.Code)
	assert.Empty(t, orders.orderID)
}

func TestProcessPayment(t *testing.T) {
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, _ := do(t, s, http.MethodPost, "/api/v1/orders/ord_1/payments", `{"paymentReference":"pi_123"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ord_1", orders.orderID)
	assert.Equal(t, "pi_123", orders.reference)
}

func TestCancelOrder(t *testing.T) {
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, _ := do(t, s, http.MethodPost, "/api/v1/orders/ord_1/cancel", `{"reason":"customer request"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "customer request", orders.reason)
}

func TestCancelOrderWithoutBody(t *testing.T) {
	orders := &fakeOrders{order: sampleOrder()}
	s := newTestServer(t, testConfig(), Dependencies{Orders: orders})

	w, _ := do(t, s, http.MethodPost, "/api/v1/orders/ord_1/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ord_1", orders.orderID)
	assert.Empty(t, orders.reason)
}

func TestOrderRoutesAreRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	s := newTestServer(t, cfg, Dependencies{Orders: &fakeOrders{order: sampleOrder()}, Health: pinger{}})

	w, _ := do(t, s, http.MethodGet, "/api/v1/orders/ord_1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, s, http.MethodGet, "/api/v1/orders/ord_1", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, apperrors.CodeRateLimited, env.Error.Code)

	w, _ = do(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListDeadLetters(t *testing.T) {
	dl := &fakeDeadLetters{messages: []*models.DeadLetterMessage{{ID: 3, EventType: models.EventOrderCreated}}}
	s := newTestServer(t, testConfig(), Dependencies{DeadLetters: dl})

	w, env := do(t, s, http.MethodGet, "/api/v1/admin/dead-letters?page=3&pageSize=20", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DeadLetterStatusPending, dl.status)
	assert.Equal(t, 20, dl.limit)
	assert.Equal(t, 40, dl.offset)

	var page PaginationResponse
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(3), page.Items[0].ID)
}

func TestListDeadLettersRejectsUnknownStatus(t *testing.T) {
	s := newTestServer(t, testConfig(), Dependencies{DeadLetters: &fakeDeadLetters{}})

	w, _ := do(t, s, http.MethodGet, "/api/v1/admin/dead-letters?status=lost", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryDeadLetter(t *testing.T) {
	dl := &fakeDeadLetters{}
	s := newTestServer(t, testConfig(), Dependencies{DeadLetters: dl})

	w, env := do(t, s, http.MethodPost, "/api/v1/admin/dead-letters/12/retry", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(12), dl.requeued)
	assert.Contains(t, string(env.Data), `"outboxId":900`)
}

func TestRetryDeadLetterNotPending(t *testing.T) {
	dl := &fakeDeadLetters{err: repository.ErrNotFound}
	s := newTestServer(t, testConfig(), Dependencies{DeadLetters: dl})

	w, env := do(t, s, http.MethodPost, "/api/v1/admin/dead-letters/12/retry", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeDeadLetterNotFound, env.Error.Code)
}

func TestDiscardDeadLetter(t *testing.T) {
	dl := &fakeDeadLetters{}
	s := newTestServer(t, testConfig(), Dependencies{DeadLetters: dl})

	w, _ := do(t, s, http.MethodPost, "/api/v1/admin/dead-letters/8/discard", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(8), dl.discarded)
}

func TestDeadLetterRejectsBadID(t *testing.T) {
	dl := &fakeDeadLetters{}
	s := newTestServer(t, testConfig(), Dependencies{DeadLetters: dl})

	w, _ := do(t, s, http.MethodPost, "/api/v1/admin/dead-letters/abc/discard", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, dl.discarded)
}

func TestDeadLetterStoreFailure(t *testing.T) {
	dl := &fakeDeadLetters{err: repository.ErrDatabase}
	s := newTestServer(t, testConfig(), Dependencies{DeadLetters: dl})

	w, env := do(t, s, http.MethodPost, "/api/v1/admin/dead-letters/8/discard", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.CodeInternal, env.Error.Code)
}
