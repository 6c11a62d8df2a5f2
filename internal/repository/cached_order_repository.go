package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/cache"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/logger"
)

// OrderStore is the persistence contract of the order lifecycle
type OrderStore interface {
	Create(ctx context.Context, order *models.Order, events ...*models.OutboxMessage) error
	Update(ctx context.Context, order *models.Order, events ...*models.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, params ListParams) (*OrderPage, error)
}

var _ OrderStore = (*OrderRepository)(nil)
var _ OrderStore = (*CachedOrderRepository)(nil)

// CachedOrderRepository adds a read-through cache in front of GetByID.
// Cache failures are logged and fall through to the wrapped store.
type CachedOrderRepository struct {
	next   OrderStore
	cache  cache.Cache
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedOrderRepository wraps next with c
func NewCachedOrderRepository(next OrderStore, c cache.Cache, ttl time.Duration, logger logger.Logger) *CachedOrderRepository {
	return &CachedOrderRepository{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *CachedOrderRepository) Create(ctx context.Context, order *models.Order, events ...*models.OutboxMessage) error {
	return r.next.Create(ctx, order, events...)
}

// Update writes the committed order through to the cache. A version conflict
// leaves the cache alone: the winning writer has stored its newer copy. Any
// other failure evicts.
func (r *CachedOrderRepository) Update(ctx context.Context, order *models.Order, events ...*models.OutboxMessage) error {
	err := r.next.Update(ctx, order, events...)
	switch {
	case err == nil:
		r.store(ctx, order, true)
	case !errors.Is(err, ErrVersionConflict):
		r.evict(ctx, order.ID)
	}
	return err
}

// GetByID reads through the cache. The loaded order is cached only if no
// newer version was stored while it was being read.
func (r *CachedOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	key := cache.OrderKey(id)

	raw, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var order models.Order
		if jsonErr := json.Unmarshal(raw, &order); jsonErr == nil {
			return &order, nil
		}
		r.logger.Warn("Discarding undecodable cached order", "orderID", id)
		r.evict(ctx, id)
	case !errors.Is(err, cache.ErrMiss):
		r.logger.Warn("Order cache read failed", "error", err, "orderID", id)
	}

	order, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.store(ctx, order, false)
	return order, nil
}

// store caches order unless a newer version is already cached. When evictOnFailure
// is set a failed write evicts the key.
func (r *CachedOrderRepository) store(ctx context.Context, order *models.Order, evictOnFailure bool) {
	raw, err := json.Marshal(order)
	if err == nil {
		_, err = r.cache.SetIfNewer(ctx, cache.OrderKey(order.ID), int64(order.Version), raw, r.ttl)
		if err == nil {
			return
		}
	}

	r.logger.Warn("Order cache write failed", "error", err, "orderID", order.ID)
	if evictOnFailure {
		r.evict(ctx, order.ID)
	}
}

func (r *CachedOrderRepository) List(ctx context.Context, params ListParams) (*OrderPage, error) {
	return r.next.List(ctx, params)
}

func (r *CachedOrderRepository) evict(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, cache.OrderKey(id)); err != nil {
		r.logger.Warn("Order cache eviction failed", "error", err, "orderID", id)
	}
}
