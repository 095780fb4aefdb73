package main

import (
	"context"
	"log/slog"

	"github.com/JoseSOto27/WNGL/common/api"
	"github.com/JoseSOto27/WNGL/common/metrics"
)

// CachedStore puts the menu and the dashboard stats behind Redis (cache-aside).
// Cache failures fall through to Postgres.
type CachedStore struct {
	OrdersStore
	cache   *Cache
	logger  *slog.Logger
	metrics *metrics.OrderMetrics
}

func NewCachedStore(store OrdersStore, cache *Cache, logger *slog.Logger, m *metrics.OrderMetrics) *CachedStore {
	return &CachedStore{
		OrdersStore: store,
		cache:       cache,
		logger:      logger,
		metrics:     m,
	}
}

func (s *CachedStore) ListProducts(ctx context.Context) ([]*api.Product, error) {
	cached, err := s.cache.GetMenu(ctx)
	if err != nil {
		s.lookup("menu", "error")
		s.logger.Warn("menu cache read failed, querying postgres", slog.Any("error", err))
	} else if cached != nil {
		s.lookup("menu", "hit")
		return cached, nil
	} else {
		s.lookup("menu", "miss")
	}

	products, err := s.OrdersStore.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetMenu(ctx, products); err != nil {
		s.logger.Warn("failed to populate menu cache", slog.Any("error", err))
	}
	return products, nil
}

func (s *CachedStore) DashboardStats(ctx context.Context) (*api.DashboardStats, error) {
	cached, err := s.cache.GetStats(ctx)
	if err != nil {
		s.lookup("stats", "error")
		s.logger.Warn("stats cache read failed, querying postgres", slog.Any("error", err))
	} else if cached != nil {
		s.lookup("stats", "hit")
		return cached, nil
	} else {
		s.lookup("stats", "miss")
	}

	stats, err := s.OrdersStore.DashboardStats(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetStats(ctx, stats); err != nil {
		s.logger.Warn("failed to populate stats cache", slog.Any("error", err))
	}
	return stats, nil
}

func (s *CachedStore) InsertOrder(ctx context.Context, o *api.Order) (int64, error) {
	id, err := s.OrdersStore.InsertOrder(ctx, o)
	if err == nil {
		s.InvalidateStats(ctx)
	}
	return id, err
}

func (s *CachedStore) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	err := s.OrdersStore.UpdateOrderStatus(ctx, id, status)
	if err == nil {
		s.InvalidateStats(ctx)
	}
	return err
}

// InvalidateStats drops the cached dashboard. A failed delete is only logged;
// the entry still expires on its TTL.
func (s *CachedStore) InvalidateStats(ctx context.Context) {
	if err := s.cache.InvalidateStats(ctx); err != nil {
		s.logger.Warn("failed to invalidate stats cache", slog.Any("error", err))
	}
}

func (s *CachedStore) lookup(cache, result string) {
	s.metrics.CacheLookups.WithLabelValues(cache, result).Inc()
}
