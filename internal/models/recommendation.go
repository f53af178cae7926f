package models

import (
	"errors"
	"time"
)

// ErrNotFound indicates a query for a product id the live generation does not know.
var ErrNotFound = errors.New("product not found")

// Recommendation is a single ranked hit with the product metadata the
// storefront needs to render a recommendation row.
type Recommendation struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Brand     string  `json:"brand,omitempty"`
	Category  string  `json:"category,omitempty"`
	Rating    float64 `json:"rating,omitempty"`
	Picture   string  `json:"picture,omitempty"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason,omitempty"`
}

// SyncStats reports one refresh of the analytics copy from production.
type SyncStats struct {
	ProductsSynced int       `json:"products_synced"`
	OrdersSynced   int       `json:"orders_synced"`
	ItemsSynced    int       `json:"order_items_synced"`
	SyncedAt       time.Time `json:"synced_at"`
}

// TrainStats reports one completed training run.
type TrainStats struct {
	GenerationID     uint64    `json:"generation_id"`
	RunID            string    `json:"run_id"`
	ProductCount     int       `json:"product_count"`
	BasketCount      int       `json:"basket_count"`
	FeatureDimension int       `json:"feature_dimension"`
	TrainingSeconds  float64   `json:"training_time_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}
