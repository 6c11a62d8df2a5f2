package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	pending    []*models.OutboxMessage
	completed  []int64
	retried    []int64
	deadLetter []int64
	claimErr   error
}

func (s *fakeStore) GetPendingMessages(_ context.Context, limit int) ([]*models.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	claimed := s.pending[:limit]
	s.pending = s.pending[limit:]
	for _, m := range claimed {
		m.ProcessingAttempts++
		m.Status = models.OutboxStatusProcessing
	}
	return claimed, nil
}

func (s *fakeStore) MarkAsCompleted(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeStore) MarkForRetry(ctx context.Context, id int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.retried = append(s.retried, id)
	return nil
}

func (s *fakeStore) MoveToDeadLetter(ctx context.Context, msg *models.OutboxMessage, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.deadLetter = append(s.deadLetter, msg.ID)
	return nil
}

// slowPublisher blocks until the delivery context ends
type slowPublisher struct{}

func (slowPublisher) SendMessage(ctx context.Context, _, _ string, _ []byte, _ map[string]string) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakePublisher struct {
	mu      sync.Mutex
	err     error
	sent    []string
	headers []map[string]string
}

func (p *fakePublisher) SendMessage(_ context.Context, topic, key string, _ []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, topic+"/"+key)
	p.headers = append(p.headers, headers)
	return nil
}

func message(id int64, eventType string, attempts int) *models.OutboxMessage {
	return &models.OutboxMessage{
		ID:                 id,
		AggregateType:      "order",
		AggregateID:        "ord_1",
		EventType:          eventType,
		Payload:            []byte(`{"event_type":"` + eventType + `","data":{}}`),
		ProcessingAttempts: attempts,
		Status:             models.OutboxStatusPending,
	}
}

func newTestProcessor(store Store, pub Publisher) *Processor {
	p := NewProcessor(store, ProcessorConfig{
		PollingInterval: time.Second,
		BatchSize:       10,
		MaxAttempts:     3,
	}, logger.NewNop())
	RegisterAll(p, NewKafkaHandler(pub, "order-events", logger.NewNop()))
	return p
}

func TestProcessBatchPublishes(t *testing.T) {
	store := &fakeStore{pending: []*models.OutboxMessage{
		message(1, models.EventOrderCreated, 0),
		message(2, models.EventPaymentStatusChanged, 0),
	}}
	pub := &fakePublisher{}
	p := newTestProcessor(store, pub)

	n, err := p.processBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.completed)
	assert.Equal(t, []string{"order-events/ord_1", "order-events/ord_1"}, pub.sent)
	assert.Equal(t, models.EventPaymentStatusChanged, pub.headers[1]["event_type"])
	assert.Equal(t, "2", pub.headers[1]["outbox_id"])
}

func TestProcessBatchRetriesThenDeadLetters(t *testing.T) {
	store := &fakeStore{pending: []*models.OutboxMessage{
		message(1, models.EventOrderCreated, 0),
		message(2, models.EventOrderCreated, 2),
	}}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	p := newTestProcessor(store, pub)

	n, err := p.processBatch(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Equal(t, []int64{1}, store.retried)
	assert.Equal(t, []int64{2}, store.deadLetter, "third failed attempt moves the message")
	assert.Empty(t, store.completed)
}

func TestTimedOutDeliveriesAreReleased(t *testing.T) {
	store := &fakeStore{pending: []*models.OutboxMessage{
		message(1, models.EventOrderCreated, 0),
		message(2, models.EventOrderCreated, 0),
		message(3, models.EventOrderCreated, 2),
	}}
	p := NewProcessor(store, ProcessorConfig{PollingInterval: 20 * time.Millisecond, BatchSize: 10, MaxAttempts: 3}, logger.NewNop())
	RegisterAll(p, NewKafkaHandler(slowPublisher{}, "order-events", logger.NewNop()))

	n, err := p.processBatch(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Equal(t, []int64{1, 2}, store.retried)
	assert.Equal(t, []int64{3}, store.deadLetter)
}

func TestStoppedBatchReleasesClaimedMessages(t *testing.T) {
	store := &fakeStore{pending: []*models.OutboxMessage{
		message(1, models.EventOrderCreated, 2),
		message(2, models.EventOrderCreated, 2),
	}}
	p := NewProcessor(store, ProcessorConfig{PollingInterval: time.Second, BatchSize: 10, MaxAttempts: 3}, logger.NewNop())
	RegisterAll(p, NewKafkaHandler(slowPublisher{}, "order-events", logger.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := p.processBatch(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, store.retried)
	assert.Empty(t, store.deadLetter, "shutdown does not use up attempts")
}

func TestUnknownEventTypeIsDeadLettered(t *testing.T) {
	store := &fakeStore{pending: []*models.OutboxMessage{message(5, "invoice_created", 0)}}
	p := newTestProcessor(store, &fakePublisher{})

	_, err := p.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, store.deadLetter)
}

func TestProcessBatchClaimFailure(t *testing.T) {
	store := &fakeStore{claimErr: errors.New("connection refused")}
	p := newTestProcessor(store, &fakePublisher{})

	_, err := p.processBatch(context.Background())
	assert.Error(t, err)
}

func TestProcessorStartStop(t *testing.T) {
	store := &fakeStore{pending: []*models.OutboxMessage{message(1, models.EventOrderCreated, 0)}}
	p := NewProcessor(store, ProcessorConfig{PollingInterval: 10 * time.Millisecond, BatchSize: 5, MaxAttempts: 3}, logger.NewNop())
	RegisterAll(p, NewLoggingHandler(logger.NewNop()))

	p.Start()
	p.Start()

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.completed) == 1
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestLoggingHandlerRejectsGarbage(t *testing.T) {
	h := NewLoggingHandler(logger.NewNop())
	err := h.HandleMessage(context.Background(), &models.OutboxMessage{ID: 1, Payload: []byte("not json")})
	assert.Error(t, err)
}
