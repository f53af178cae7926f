// Package storage defines the persistence interfaces for the transactional
// (production) and analytical stores, plus the production-to-analytics syncer.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/susume/internal/models"
)

// ErrSnapshotUnavailable indicates the data source for a snapshot read or
// sync is unreachable or holds no usable data. Fatal to the triggering run,
// never to the serving process.
var ErrSnapshotUnavailable = errors.New("analytics snapshot unavailable")

// ProductionStore reads catalog and order data from the storefront's
// transactional database. It never writes.
type ProductionStore interface {
	Products(ctx context.Context) ([]models.ProductRecord, error)
	Orders(ctx context.Context) ([]models.Order, error)
	OrderItems(ctx context.Context) ([]models.OrderItem, error)
	Ping(ctx context.Context) error
	Close() error
}

// AnalyticsStore owns the analytical copy training reads from. Refreshing it
// is decoupled from training so sync and train cadence can differ.
type AnalyticsStore interface {
	// Replace swaps in a full fresh copy of products, orders, and order items
	// in a single transaction.
	Replace(ctx context.Context, products []models.ProductRecord, orders []models.Order, items []models.OrderItem) error

	// Snapshot returns a consistent (products, baskets) pair read in one
	// transaction. Returns ErrSnapshotUnavailable when the store is
	// unreachable or holds zero products.
	Snapshot(ctx context.Context) (*models.Snapshot, error)

	// Counts returns the number of products and orders currently held.
	Counts(ctx context.Context) (products, orders int64, err error)

	Ping(ctx context.Context) error
	Close() error
}
