// Package models defines core data structures for products, baskets, and recommendations.
package models

// ProductRecord is an immutable snapshot copy of one catalog product, taken at
// training time. Name, Picture, and Stock are carried so recommendation
// responses can be rendered without a second catalog lookup.
type ProductRecord struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Brand    string  `json:"brand"`
	Price    float64 `json:"price"`
	Rating   float64 `json:"rating"`
	Picture  string  `json:"picture,omitempty"`
	Stock    int64   `json:"stock"`
}

// Order is one row of order history; baskets are derived from its items.
type Order struct {
	ID         int64   `json:"id"`
	CustomerID int64   `json:"customer_id"`
	Total      float64 `json:"total_amount"`
}

// OrderItem is one product line within an order.
type OrderItem struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// OrderBasket is the distinct set of products purchased in one order.
// Quantity lines for the same product collapse into a single membership.
type OrderBasket struct {
	OrderID    int64   `json:"order_id"`
	ProductIDs []int64 `json:"product_ids"`
}

// Snapshot is a consistent point-in-time pair of catalog and order data read
// from the analytics store. It is the sole input of a training run.
type Snapshot struct {
	Products []ProductRecord
	Baskets  []OrderBasket
}
