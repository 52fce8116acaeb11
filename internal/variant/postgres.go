package variant

import (
	"context"
	"database/sql"
	"time"

	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/tracing"
)

// PostgresRepository implements Repository on the variant_metrics table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `
	item_key, variant_ref, printing_id, provider, grade,
	trend_slope_7d, cov_price_30d, price_relative_to_30d_range, price_changes_count_30d,
	history_points_30d, signal_trend, signal_breakout, signal_value,
	signals_as_of, updated_at
`

// ListPage implements Repository.
func (r *PostgresRepository) ListPage(ctx context.Context, provider, grade string, offset, limit int) (recs []Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "variant_metrics", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT` + selectColumns + `
		FROM variant_metrics
		WHERE provider = $1 AND grade = $2
		ORDER BY item_key, variant_ref, printing_id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, provider, grade, limit, offset)
	if err != nil {
		return nil, db.WrapStore("list variants", provider+":"+grade, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, db.WrapStore("scan variant", "", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapStore("iterate variants", provider+":"+grade, err)
	}
	return recs, nil
}

// Get returns the row for key or db.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, key Key) (rec Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "variant_metrics", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT` + selectColumns + `
		FROM variant_metrics
		WHERE item_key = $1 AND variant_ref = $2 AND printing_id = $3
		  AND provider = $4 AND grade = $5
	`
	rec, err = scanRecord(r.db.QueryRowContext(ctx, query,
		key.ItemKey, key.VariantRef, key.PrintingID, key.Provider, key.Grade))
	if err == sql.ErrNoRows {
		return Record{}, db.ErrNotFound
	}
	if err != nil {
		return Record{}, db.WrapStore("get variant", key.String(), err)
	}
	return rec, nil
}

// UpdateSignals implements Repository.
func (r *PostgresRepository) UpdateSignals(ctx context.Context, key Key, u SignalUpdate) (err error) {
	if err := u.Validate(); err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "variant_metrics", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	query := `
		UPDATE variant_metrics
		SET history_points_30d = $6,
		    signal_trend = $7,
		    signal_breakout = $8,
		    signal_value = $9,
		    signals_as_of = $10,
		    updated_at = $11
		WHERE item_key = $1 AND variant_ref = $2 AND printing_id = $3
		  AND provider = $4 AND grade = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		key.ItemKey, key.VariantRef, key.PrintingID, key.Provider, key.Grade,
		u.HistoryPoints30d,
		nullFloat(u.SignalTrend),
		nullFloat(u.SignalBreakout),
		nullFloat(u.SignalValue),
		nullTime(u.SignalsAsOf),
		u.UpdatedAt.UTC(),
	)
	if err != nil {
		return db.WrapStore("update signals", key.String(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.WrapStore("update signals", key.String(), err)
	}
	if n == 0 {
		return db.WrapStore("update signals", key.String(), db.ErrNotFound)
	}
	return nil
}

// RefreshSignalsBulk implements Repository by calling the
// refresh_variant_signals SQL function.
func (r *PostgresRepository) RefreshSignalsBulk(ctx context.Context, provider, grade string, now time.Time, window time.Duration) (n int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "variant_metrics", tracing.DBOperationExec)
	defer func() { endSpan(err) }()

	query := `SELECT refresh_variant_signals($1, $2, $3, make_interval(secs => $4))`
	if err = r.db.QueryRowContext(ctx, query, provider, grade, now.UTC(), window.Seconds()).Scan(&n); err != nil {
		return 0, db.WrapStore("refresh signals bulk", provider+":"+grade, err)
	}
	return n, nil
}

// UpsertStats writes provider statistics, creating the row on first report.
// Derived fields of an existing row are left untouched.
func (r *PostgresRepository) UpsertStats(ctx context.Context, rec Record) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "variant_metrics", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO variant_metrics (
			item_key, variant_ref, printing_id, provider, grade,
			trend_slope_7d, cov_price_30d, price_relative_to_30d_range, price_changes_count_30d
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (item_key, variant_ref, printing_id, provider, grade) DO UPDATE
		SET trend_slope_7d = EXCLUDED.trend_slope_7d,
		    cov_price_30d = EXCLUDED.cov_price_30d,
		    price_relative_to_30d_range = EXCLUDED.price_relative_to_30d_range,
		    price_changes_count_30d = EXCLUDED.price_changes_count_30d
	`
	var changes sql.NullInt64
	if rec.PriceChangesCount30d != nil {
		changes = sql.NullInt64{Int64: int64(*rec.PriceChangesCount30d), Valid: true}
	}
	_, err = r.db.ExecContext(ctx, query,
		rec.ItemKey, rec.VariantRef, rec.PrintingID, rec.Provider, rec.Grade,
		nullFloat(rec.TrendSlope7d),
		nullFloat(rec.CovPrice30d),
		nullFloat(rec.PriceRelativeTo30dRange),
		changes,
	)
	if err != nil {
		return db.WrapStore("upsert variant stats", rec.Key.String(), err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (Record, error) {
	var (
		rec                    Record
		slope, cov, rel        sql.NullFloat64
		changes                sql.NullInt64
		trend, breakout, value sql.NullFloat64
		asOf                   sql.NullTime
	)
	err := s.Scan(
		&rec.ItemKey, &rec.VariantRef, &rec.PrintingID, &rec.Provider, &rec.Grade,
		&slope, &cov, &rel, &changes,
		&rec.HistoryPoints30d, &trend, &breakout, &value,
		&asOf, &rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}

	rec.TrendSlope7d = floatPtr(slope)
	rec.CovPrice30d = floatPtr(cov)
	rec.PriceRelativeTo30dRange = floatPtr(rel)
	if changes.Valid {
		c := int(changes.Int64)
		rec.PriceChangesCount30d = &c
	}
	rec.SignalTrend = floatPtr(trend)
	rec.SignalBreakout = floatPtr(breakout)
	rec.SignalValue = floatPtr(value)
	if asOf.Valid {
		t := asOf.Time
		rec.SignalsAsOf = &t
	}
	return rec, nil
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}
