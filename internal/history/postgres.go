package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/tracing"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore reads price_history. The (item_key, variant_ref,
// observed_at) index keeps CountPointsSince an index-only range count.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CountPointsSince implements Store.
func (s *PostgresStore) CountPointsSince(ctx context.Context, itemKey, variantRef string, since time.Time) (n int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "price_history", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT COUNT(*)
		FROM price_history
		WHERE item_key = $1
		  AND variant_ref = $2
		  AND observed_at >= $3
	`
	if err = s.db.QueryRowContext(ctx, query, itemKey, variantRef, since.UTC()).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Insert writes a point. A point with an existing identity returns
// db.ErrDuplicateKey.
func (s *PostgresStore) Insert(ctx context.Context, p Point) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "price_history", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO price_history (item_key, variant_ref, price_window, observed_at, price_cents)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query, p.ItemKey, p.VariantRef, p.Window, p.ObservedAt.UTC(), p.PriceCents)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return db.ErrDuplicateKey
	}
	if err != nil {
		return db.WrapStore("insert history point", p.ItemKey+"/"+p.VariantRef, err)
	}
	return nil
}
