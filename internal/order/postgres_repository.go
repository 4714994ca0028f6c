package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/shopcore/fulfillment/internal/events"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// PostgresRepository persists orders and doubles as the events outbox for the
// process, so order creation and its events share one database.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	conn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "fulfillment_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
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

func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshal order lines: %w", err)
	}
	shipJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}
	tokensJSON, err := json.Marshal(o.ReservationTokens)
	if err != nil {
		return fmt.Errorf("marshal reservation tokens: %w", err)
	}

	query := `INSERT INTO orders (
	            id, number, user_id, status, lines,
	            subtotal, discount, tax, shipping, total,
	            coupon_code, payment_method, shipping_address, billing_address,
	            reservation_tokens, estimated_delivery, created_at, updated_at)
	          VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW())`

	_, insertErr := r.db.ExecContext(ctx, query,
		o.ID,
		o.Number,
		o.UserID,
		o.Status,
		linesJSON,
		o.Subtotal.String(),
		o.Discount.String(),
		o.Tax.String(),
		o.Shipping.String(),
		o.Total.String(),
		o.CouponCode,
		o.PaymentMethod,
		shipJSON,
		billJSON,
		tokensJSON,
		o.EstimatedDelivery,
	)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

const orderColumns = `id, number, user_id, status, lines,
	subtotal, discount, tax, shipping, total,
	coupon_code, payment_method, shipping_address, billing_address,
	reservation_tokens, estimated_delivery, actual_delivery, created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, number))
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()

	var result []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) CountUserOrders(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status <> $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, StatusCancelled).Scan(&count); err != nil {
		return 0, fmt.Errorf("count user orders: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, actualDelivery *time.Time) error {
	query := `UPDATE orders
	          SET status = $2, actual_delivery = COALESCE($3, actual_delivery), updated_at = NOW()
	          WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, actualDelivery)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PostgresRepository) SetReservationTokens(ctx context.Context, id uuid.UUID, tokens []string) error {
	tokensJSON, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal reservation tokens: %w", err)
	}
	query := `UPDATE orders SET reservation_tokens = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, tokensJSON)
	if err != nil {
		return fmt.Errorf("update reservation tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation tokens: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanOrder(row rowScanner) (*Order, error) {
	var (
		o          Order
		linesJSON  []byte
		shipJSON   []byte
		billJSON   []byte
		tokensJSON []byte
		subtotal   string
		discount   string
		tax        string
		shipping   string
		total      string
		coupon     sql.NullString
		delivered  sql.NullTime
	)
	err := row.Scan(
		&o.ID,
		&o.Number,
		&o.UserID,
		&o.Status,
		&linesJSON,
		&subtotal,
		&discount,
		&tax,
		&shipping,
		&total,
		&coupon,
		&o.PaymentMethod,
		&shipJSON,
		&billJSON,
		&tokensJSON,
		&o.EstimatedDelivery,
		&delivered,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	if err := json.Unmarshal(shipJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billJSON, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	if err := json.Unmarshal(tokensJSON, &o.ReservationTokens); err != nil {
		return nil, fmt.Errorf("unmarshal reservation tokens: %w", err)
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.Subtotal, subtotal},
		{&o.Discount, discount},
		{&o.Tax, tax},
		{&o.Shipping, shipping},
		{&o.Total, total},
	} {
		d, err := decimal.NewFromString(pair.src)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", pair.src, err)
		}
		*pair.dst = d
	}

	o.CouponCode = coupon.String
	if delivered.Valid {
		ts := delivered.Time
		o.ActualDelivery = &ts
	}
	return &o, nil
}

// Record appends an event to the outbox table (events.Outbox).
func (r *PostgresRepository) Record(ctx context.Context, event events.Event) error {
	query := `INSERT INTO outbox (id, event_type, aggregate_id, payload, occurred_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, string(event.Type), event.AggregateID, []byte(event.Payload), event.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Unpublished(ctx context.Context, limit int) ([]events.Event, error) {
	query := `SELECT id, event_type, aggregate_id, payload, occurred_at
	          FROM outbox WHERE published_at IS NULL ORDER BY occurred_at LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var result []events.Event
	for rows.Next() {
		var (
			e       events.Event
			kind    string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &kind, &e.AggregateID, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Type = events.Type(kind)
		e.Payload = payload
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox SET published_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
