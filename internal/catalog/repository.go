package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Repository is a sqlite-backed catalog provider. Prices are stored as TEXT to
// avoid float drift.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) CurrentPrice(ctx context.Context, productID, variantID int64) (decimal.Decimal, error) {
	query := `SELECT price FROM catalog_items WHERE product_id = ? AND variant_id = ?`

	var raw string
	err := r.db.QueryRowContext(ctx, query, productID, variantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrProductNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query price: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse stored price %q: %w", raw, err)
	}
	return price, nil
}

func (r *Repository) CurrentStock(ctx context.Context, productID, variantID int64) (int32, error) {
	query := `SELECT stock FROM catalog_items WHERE product_id = ? AND variant_id = ?`

	var stock int32
	err := r.db.QueryRowContext(ctx, query, productID, variantID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return stock, nil
}

// Items lists every catalog row, for mirroring stock into the inventory
// ledger at boot.
func (r *Repository) Items(ctx context.Context) ([]Item, error) {
	query := `SELECT product_id, variant_id, price, stock FROM catalog_items`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item Item
			raw  string
		)
		if err := rows.Scan(&item.ProductID, &item.VariantID, &raw, &item.Stock); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if item.Price, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse stored price %q: %w", raw, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertItem sets price and stock of record for one catalog item.
func (r *Repository) UpsertItem(ctx context.Context, productID, variantID int64, price decimal.Decimal, stock int32) error {
	query := `
		INSERT INTO catalog_items (product_id, variant_id, price, stock)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (product_id, variant_id) DO UPDATE SET price = excluded.price, stock = excluded.stock
	`
	if _, err := r.db.ExecContext(ctx, query, productID, variantID, price.String(), stock); err != nil {
		return fmt.Errorf("upsert catalog item: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
