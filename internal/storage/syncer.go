package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/susume/internal/models"
)

// Syncer refreshes the analytical copy from the production store. Sync is
// deliberately decoupled from training so the two cadences can differ.
type Syncer struct {
	production ProductionStore
	analytics  AnalyticsStore
	logger     *zap.Logger // optional; when set, logs sync progress
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithSyncLogger sets a logger for sync progress output.
func WithSyncLogger(l *zap.Logger) SyncerOption {
	return func(s *Syncer) { s.logger = l }
}

// NewSyncer creates a syncer over the given stores.
func NewSyncer(production ProductionStore, analytics AnalyticsStore, opts ...SyncerOption) *Syncer {
	s := &Syncer{production: production, analytics: analytics}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync copies products, orders, and order items from production into the
// analytics store. Returns ErrSnapshotUnavailable when production is
// unreachable; a failed sync leaves the previous analytics copy intact
// (Replace is transactional).
func (s *Syncer) Sync(ctx context.Context) (*models.SyncStats, error) {
	if err := s.production.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: production store unreachable: %v", ErrSnapshotUnavailable, err)
	}

	var (
		products []models.ProductRecord
		orders   []models.Order
		items    []models.OrderItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.production.Products(gctx)
		return err
	})
	g.Go(func() (err error) {
		orders, err = s.production.Orders(gctx)
		return err
	})
	g.Go(func() (err error) {
		items, err = s.production.OrderItems(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: read production data: %v", ErrSnapshotUnavailable, err)
	}

	if err := s.analytics.Replace(ctx, products, orders, items); err != nil {
		return nil, fmt.Errorf("failed to replace analytics copy: %w", err)
	}

	stats := &models.SyncStats{
		ProductsSynced: len(products),
		OrdersSynced:   len(orders),
		ItemsSynced:    len(items),
		SyncedAt:       time.Now(),
	}
	if s.logger != nil {
		s.logger.Info("analytics sync completed",
			zap.Int("products", stats.ProductsSynced),
			zap.Int("orders", stats.OrdersSynced),
			zap.Int("order_items", stats.ItemsSynced),
		)
	}
	return stats, nil
}
