//go:build integration

// Package migrations_test applies the SQL migrations to a throwaway Postgres
// container and exercises the Postgres stores against them.
//
// Run with: go test -tags=integration -v ./migrations/...
// Docker must be available.
package migrations_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver; imported for side-effects (driver registration)
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/history"
	"github.com/onnwee/cardpulse/internal/refresh"
	"github.com/onnwee/cardpulse/internal/search"
	"github.com/onnwee/cardpulse/internal/signal"
	"github.com/onnwee/cardpulse/internal/variant"
)

// setupTestDB starts a Postgres container and applies every up migration.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("cardpulse"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	database, err := db.Open(ctx, dsn)
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { database.Close() })

	applyMigrations(t, ctx, database)
	return database
}

func applyMigrations(t *testing.T, ctx context.Context, database *sql.DB) {
	t.Helper()

	entries, err := os.ReadDir(".")
	require.NoError(t, err, "failed to read migrations directory")

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	require.NotEmpty(t, files)

	for _, file := range files {
		stmt, err := os.ReadFile(filepath.Join(".", file))
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = database.ExecContext(ctx, string(stmt))
		require.NoError(t, err, "failed to execute migration: %s", file)
		t.Logf("Applied migration: %s", file)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func seedHistory(t *testing.T, store *history.PostgresStore, itemKey, variantRef string, now time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Insert(context.Background(), history.Point{
			ItemKey:    itemKey,
			VariantRef: variantRef,
			Window:     "1d",
			ObservedAt: now.Add(-time.Duration(i+1) * 24 * time.Hour),
			PriceCents: int64(1000 + i),
		})
		require.NoError(t, err)
	}
}

func TestRefresh_BulkFunctionMatchesGoSignals(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	repo := variant.NewPostgresRepository(database)
	histStore := history.NewPostgresStore(database)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	deep := variant.Record{
		Key:                     variant.Key{ItemKey: "base1-4", VariantRef: "holo", Provider: "tcgplayer", Grade: variant.RawGrade},
		TrendSlope7d:            ptr(0.12),
		CovPrice30d:             ptr(0.3),
		PriceRelativeTo30dRange: ptr(0.25),
		PriceChangesCount30d:    ptr(14),
	}
	shallow := variant.Record{
		Key:                     variant.Key{ItemKey: "base1-2", VariantRef: "holo", Provider: "tcgplayer", Grade: variant.RawGrade},
		TrendSlope7d:            ptr(0.5),
		CovPrice30d:             ptr(0.2),
		PriceRelativeTo30dRange: ptr(0.5),
	}
	badRange := variant.Record{
		Key:                     variant.Key{ItemKey: "base1-15", VariantRef: "holo", Provider: "tcgplayer", Grade: variant.RawGrade},
		TrendSlope7d:            ptr(0.05),
		CovPrice30d:             ptr(0.1),
		PriceRelativeTo30dRange: ptr(1.7),
	}
	for _, rec := range []variant.Record{deep, shallow, badRange} {
		require.NoError(t, repo.UpsertStats(ctx, rec))
	}

	seedHistory(t, histStore, "base1-4", "holo", now, 12)
	seedHistory(t, histStore, "base1-2", "holo", now, 4)
	seedHistory(t, histStore, "base1-15", "holo", now, 20)

	n, err := repo.RefreshSignalsBulk(ctx, "tcgplayer", variant.RawGrade, now, signal.HistoryWindow)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	got, err := repo.Get(ctx, deep.Key)
	require.NoError(t, err)
	want := signal.Compute(deep.Inputs(12))
	require.Equal(t, 12, got.HistoryPoints30d)
	require.Equal(t, want.Trend.Ptr(), got.SignalTrend)
	require.Equal(t, want.Breakout.Ptr(), got.SignalBreakout)
	require.Equal(t, want.Value.Ptr(), got.SignalValue)
	require.NotNil(t, got.SignalsAsOf)
	require.True(t, got.SignalsAsOf.Equal(now))

	got, err = repo.Get(ctx, shallow.Key)
	require.NoError(t, err)
	require.Equal(t, 4, got.HistoryPoints30d)
	require.Nil(t, got.SignalTrend)
	require.Nil(t, got.SignalBreakout)
	require.Nil(t, got.SignalValue)
	require.Nil(t, got.SignalsAsOf)

	got, err = repo.Get(ctx, badRange.Key)
	require.NoError(t, err)
	require.NotNil(t, got.SignalTrend, "trend does not depend on the range position")
	require.Nil(t, got.SignalBreakout)
	require.Nil(t, got.SignalValue)
}

func TestRefresh_PipelineAgainstPostgres(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	repo := variant.NewPostgresRepository(database)
	histStore := history.NewPostgresStore(database)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, item := range []string{"sv1-1", "sv1-2", "sv1-3", "sv1-4", "sv1-5"} {
		require.NoError(t, repo.UpsertStats(ctx, variant.Record{
			Key:                     variant.Key{ItemKey: item, VariantRef: "normal", Provider: "tcgplayer", Grade: variant.RawGrade},
			TrendSlope7d:            ptr(0.01 * float64(i+1)),
			CovPrice30d:             ptr(0.4),
			PriceRelativeTo30dRange: ptr(0.1 * float64(i)),
			PriceChangesCount30d:    ptr(i * 3),
		}))
		seedHistory(t, histStore, item, "normal", now, 8+i)
	}

	pipeline := refresh.NewPipeline(refresh.PipelineConfig{}, repo, histStore)
	summary, err := pipeline.Run(ctx, refresh.NewRunContext(refresh.FixedClock(now), refresh.Options{
		Provider: "tcgplayer",
		PageSize: 2,
	}))
	require.NoError(t, err)
	require.Equal(t, 5, summary.ProcedureRows)
	require.Equal(t, 5, summary.FallbackRows)
	require.Equal(t, 5, summary.RowsUpdated)
	require.Equal(t, 3, summary.Pages)
	require.Equal(t, 2, summary.InsufficientHistory)

	gated, err := repo.Get(ctx, variant.Key{ItemKey: "sv1-1", VariantRef: "normal", Provider: "tcgplayer", Grade: variant.RawGrade})
	require.NoError(t, err)
	require.Equal(t, 8, gated.HistoryPoints30d)
	require.Nil(t, gated.SignalsAsOf)
}

func TestRefresh_GateConstraint(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	repo := variant.NewPostgresRepository(database)
	key := variant.Key{ItemKey: "neo1-9", VariantRef: "holo", Provider: "tcgplayer", Grade: variant.RawGrade}
	require.NoError(t, repo.UpsertStats(ctx, variant.Record{Key: key}))

	_, err := database.ExecContext(ctx, `
		UPDATE variant_metrics SET history_points_30d = 3, signal_value = 50
		WHERE item_key = $1`, key.ItemKey)
	require.Error(t, err, "the table must reject signals below the history gate")
}

func TestHistory_DuplicatePoint(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	store := history.NewPostgresStore(database)
	p := history.Point{
		ItemKey:    "base1-4",
		VariantRef: "holo",
		Window:     "1d",
		ObservedAt: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
		PriceCents: 35000,
	}
	require.NoError(t, store.Insert(ctx, p))
	require.ErrorIs(t, store.Insert(ctx, p), db.ErrDuplicateKey)

	p.Window = "7d"
	require.NoError(t, store.Insert(ctx, p), "a different window is a different point")

	n, err := store.CountPointsSince(ctx, "base1-4", "holo", p.ObservedAt)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSearch_PostgresCandidates(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	_, err := database.ExecContext(ctx, `
		INSERT INTO card_search (card_key, name, set_name, number, year, aliases) VALUES
			('base1-4', 'Charizard', 'Base Set', '4/102', 1999, '{}'),
			('base1-46', 'Charmander', 'Base Set', '46/102', 1999, '{}'),
			('jp-base-6', 'Lizardon', 'Expansion Pack', '006', 1996, '{"Japanese Charizard"}'),
			('base1-2', 'Blastoise', 'Base Set', '2/102', 1999, '{}')
	`)
	require.NoError(t, err)

	svc := search.NewService(search.NewPostgresCandidateSource(database), search.DefaultWeights(), nil)

	results, err := svc.Search(ctx, "charizard", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "base1-4", results[0].Key)

	keys := make([]string, len(results))
	for i, r := range results {
		keys[i] = r.Key
	}
	require.Contains(t, keys, "jp-base-6", "alias match should be returned")
	require.NotContains(t, keys, "base1-2")

	results, err = svc.Search(ctx, "charizard 4", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "base1-4", results[0].Key)
}

func TestSearch_PostgresOrdersBeforeCap(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	_, err := database.ExecContext(ctx, `
		INSERT INTO card_search (card_key, name, set_name, number, year, aliases)
		SELECT 'rich-' || lpad(i::text, 3, '0'), 'Rich Char ' || i, 'Filler', i::text, 2001, '{}'
		FROM generate_series(0, $1 - 1) AS i
	`, search.MaxFetch)
	require.NoError(t, err)

	_, err = database.ExecContext(ctx, `
		INSERT INTO card_search (card_key, name, set_name, number, year, aliases) VALUES
			('zzz-base1-4', 'Charizard', 'Base Set', '4/102', 1999, '{"Lizardon EX"}'),
			('zzz-promo-1', 'Pikachu', 'Lizardon EX Promo', '1', 2003, '{}')
	`)
	require.NoError(t, err)

	source := search.NewPostgresCandidateSource(database)
	candidates, err := source.Candidates(ctx, "char", search.MaxFetch)
	require.NoError(t, err)
	require.Len(t, candidates, search.MaxFetch)
	require.Equal(t, "zzz-base1-4", candidates[0].Key)

	svc := search.NewService(source, search.DefaultWeights(), nil)
	results, err := svc.Search(ctx, "char", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "zzz-base1-4", results[0].Key)
	require.Equal(t, 20, results[0].Score)

	results, err = svc.Search(ctx, "lizardon ex", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "zzz-base1-4", results[0].Key)
	require.True(t, results[0].ViaAlias)
	require.Equal(t, 20, results[0].Score)
	require.Equal(t, "zzz-promo-1", results[1].Key)
}
