// Package storage provides SQLite implementations of the store interfaces.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/susume/internal/models"
)

// SQLiteProductionStore reads the storefront's transactional database.
// The connection is opened read-only so a training run can never write back.
type SQLiteProductionStore struct {
	db *sql.DB
}

// NewSQLiteProductionStore opens the production database at dbPath read-only.
func NewSQLiteProductionStore(dbPath string) (*SQLiteProductionStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open production database: %w", err)
	}
	return &SQLiteProductionStore{db: db}, nil
}

// Products returns all catalog products.
func (s *SQLiteProductionStore) Products(ctx context.Context) ([]models.ProductRecord, error) {
	return scanProducts(ctx, s.db)
}

// Orders returns all orders.
func (s *SQLiteProductionStore) Orders(ctx context.Context) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, total_amount FROM orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Total); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// OrderItems returns all order line items.
func (s *SQLiteProductionStore) OrderItems(ctx context.Context) ([]models.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity FROM order_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteProductionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteProductionStore) Close() error {
	return s.db.Close()
}

// SQLiteAnalyticsStore implements AnalyticsStore using SQLite.
type SQLiteAnalyticsStore struct {
	db *sql.DB
}

// NewSQLiteAnalyticsStore opens or creates the analytics database at dbPath
// and initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteAnalyticsStore(dbPath string) (*SQLiteAnalyticsStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteAnalyticsStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT,
		brand TEXT,
		price REAL NOT NULL,
		rating REAL,
		picture TEXT,
		stock INTEGER,
		synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER,
		total_amount REAL,
		synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
	CREATE INDEX IF NOT EXISTS idx_order_items_product_id ON order_items(product_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Replace swaps in a full fresh copy of the analytical data in one transaction.
func (s *SQLiteAnalyticsStore) Replace(ctx context.Context, products []models.ProductRecord, orders []models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"products", "orders", "order_items"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, p := range products {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, name, category, brand, price, rating, picture, stock)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Category, p.Brand, p.Price, p.Rating, p.Picture, p.Stock,
		); err != nil {
			return fmt.Errorf("failed to insert product %d: %w", p.ID, err)
		}
	}
	for _, o := range orders {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, customer_id, total_amount) VALUES (?, ?, ?)`,
			o.ID, o.CustomerID, o.Total,
		); err != nil {
			return fmt.Errorf("failed to insert order %d: %w", o.ID, err)
		}
	}
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity) VALUES (?, ?, ?, ?)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity,
		); err != nil {
			return fmt.Errorf("failed to insert order item %d: %w", it.ID, err)
		}
	}

	return tx.Commit()
}

// Snapshot reads the full catalog and all order baskets in one transaction so
// training never sees a half-synced copy. Duplicate product lines within an
// order collapse into a single basket membership.
func (s *SQLiteAnalyticsStore) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	defer tx.Rollback()

	products, err := scanProducts(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: read products: %v", ErrSnapshotUnavailable, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: analytics copy holds no products", ErrSnapshotUnavailable)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT order_id, product_id FROM order_items ORDER BY order_id, product_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: read baskets: %v", ErrSnapshotUnavailable, err)
	}
	defer rows.Close()

	var baskets []models.OrderBasket
	var current *models.OrderBasket
	for rows.Next() {
		var orderID, productID int64
		if err := rows.Scan(&orderID, &productID); err != nil {
			return nil, fmt.Errorf("%w: read baskets: %v", ErrSnapshotUnavailable, err)
		}
		if current == nil || current.OrderID != orderID {
			baskets = append(baskets, models.OrderBasket{OrderID: orderID})
			current = &baskets[len(baskets)-1]
		}
		current.ProductIDs = append(current.ProductIDs, productID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read baskets: %v", ErrSnapshotUnavailable, err)
	}

	return &models.Snapshot{Products: products, Baskets: baskets}, nil
}

// Counts returns the number of products and orders in the analytics copy.
func (s *SQLiteAnalyticsStore) Counts(ctx context.Context) (products, orders int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&products); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders); err != nil {
		return 0, 0, err
	}
	return products, orders, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteAnalyticsStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteAnalyticsStore) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanProducts(ctx context.Context, q querier) ([]models.ProductRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, COALESCE(category, ''), COALESCE(brand, ''), price,
		        COALESCE(rating, 0), COALESCE(picture, ''), COALESCE(stock, 0)
		 FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.ProductRecord
	for rows.Next() {
		var p models.ProductRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.Price, &p.Rating, &p.Picture, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
