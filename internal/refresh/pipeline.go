// Package refresh recomputes the derived signals of every tracked variant
// row for one provider and grade.
//
// A run first invokes the store-side bulk procedure, then walks all rows
// page by page, counting history, computing signals and writing each row
// back. The reported row count is the larger of the two passes. The first
// store error aborts the run; rows already written stay written and the next
// run recomputes them.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/history"
	"github.com/onnwee/cardpulse/internal/signal"
	"github.com/onnwee/cardpulse/internal/stats"
	"github.com/onnwee/cardpulse/internal/tracing"
	"github.com/onnwee/cardpulse/internal/variant"
)

// Summary describes one completed run.
type Summary struct {
	RunID               uuid.UUID     `json:"run_id"`
	Provider            string        `json:"provider"`
	Grade               string        `json:"grade"`
	RowsUpdated         int           `json:"rows_updated"`
	ProcedureRows       int           `json:"procedure_rows"`
	FallbackRows        int           `json:"fallback_rows"`
	WithSignals         int           `json:"with_signals"`
	InsufficientHistory int           `json:"insufficient_history"`
	Pages               int           `json:"pages"`
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration"`
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Logger for run activity.
	Logger *slog.Logger
	// Metrics for run tracking. Optional.
	Metrics *Metrics
}

// Pipeline runs signal refreshes against a variant repository and a history
// store. It holds no state between runs.
type Pipeline struct {
	config  PipelineConfig
	repo    variant.Repository
	history history.Store
}

// NewPipeline creates a Pipeline.
func NewPipeline(config PipelineConfig, repo variant.Repository, historyStore history.Store) *Pipeline {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Pipeline{
		config:  config,
		repo:    repo,
		history: historyStore,
	}
}

// Run performs one full refresh described by rc. Store failures are
// returned as *db.StoreError.
func (p *Pipeline) Run(ctx context.Context, rc RunContext) (summary *Summary, err error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	ctx, endSpan := tracing.StartSpan(ctx, "signal_refresh.run")
	defer func() { endSpan(err) }()

	started := time.Now()
	runID := uuid.New()
	logger := p.config.Logger.With(
		"run_id", runID.String(),
		"provider", rc.Provider,
		"grade", rc.Grade,
	)
	tracing.SetAttributes(ctx,
		attribute.String("refresh.run_id", runID.String()),
		attribute.String("refresh.provider", rc.Provider),
		attribute.Int("refresh.page_size", rc.PageSize),
	)

	defer func() {
		if err != nil && p.config.Metrics != nil {
			p.config.Metrics.IncErrors()
		}
	}()

	logger.Info("signal refresh started",
		"as_of", rc.Now,
		"page_size", rc.PageSize,
		"history_window", rc.HistoryWindow)

	procedureRows, err := p.repo.RefreshSignalsBulk(ctx, rc.Provider, rc.Grade, rc.Now, rc.HistoryWindow)
	if err != nil {
		err = db.WrapStore("refresh signals bulk", rc.Provider+":"+rc.Grade, err)
		logger.Error("bulk signal procedure failed", "error", err)
		return nil, err
	}
	tracing.AddEvent(ctx, "bulk_procedure_done", attribute.Int("rows", procedureRows))

	st := stats.NewRefreshStats()
	if err := p.walk(ctx, rc, st, logger); err != nil {
		logger.Error("signal refresh aborted",
			"error", err,
			"rows_written", st.Examined(),
			"pages", st.Pages())
		return nil, err
	}

	fallbackRows := int(st.Examined())
	summary = &Summary{
		RunID:               runID,
		Provider:            rc.Provider,
		Grade:               rc.Grade,
		RowsUpdated:         max(procedureRows, fallbackRows),
		ProcedureRows:       procedureRows,
		FallbackRows:        fallbackRows,
		WithSignals:         int(st.WithSignals()),
		InsufficientHistory: int(st.Insufficient()),
		Pages:               int(st.Pages()),
		StartedAt:           started,
		Duration:            time.Since(started),
	}

	if procedureRows != fallbackRows {
		logger.Warn("bulk procedure and fallback pass disagree",
			"procedure_rows", procedureRows,
			"fallback_rows", fallbackRows)
	}
	p.observe(summary)
	st.LogSummary(logger, rc.Provider)
	logger.Info("signal refresh completed",
		"rows_updated", summary.RowsUpdated,
		"procedure_rows", procedureRows,
		"fallback_rows", fallbackRows,
		"duration_seconds", summary.Duration.Seconds())

	return summary, nil
}

// walk pages through every row of (provider, grade) and rewrites its
// derived fields.
func (p *Pipeline) walk(ctx context.Context, rc RunContext, st *stats.RefreshStats, logger *slog.Logger) error {
	since := rc.HistoryBoundary()
	counter := history.NewCounter(p.history, rc.HistoryWindow)

	for offset := 0; ; offset += rc.PageSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.repo.ListPage(ctx, rc.Provider, rc.Grade, offset, rc.PageSize)
		if err != nil {
			return db.WrapStore("list variants", rc.Provider+":"+rc.Grade, err)
		}
		st.RecordPage()

		for _, rec := range page {
			points, err := counter.CountSince(ctx, rec.ItemKey, rec.VariantRef, since)
			if err != nil {
				return err
			}

			sigs := signal.Compute(rec.Inputs(points))
			update := variant.NewSignalUpdate(points, sigs, rc.Now)
			if err := p.repo.UpdateSignals(ctx, rec.Key, update); err != nil {
				return db.WrapStore("update signals", rec.Key.String(), err)
			}
			st.RecordRow(points, sigs)
		}

		logger.Debug("refresh page processed",
			"offset", offset,
			"rows", len(page))

		if len(page) < rc.PageSize {
			return nil
		}
	}
}

func (p *Pipeline) observe(s *Summary) {
	m := p.config.Metrics
	if m == nil {
		return
	}
	m.IncRuns()
	m.ObserveDuration(s.Duration.Seconds())
	m.SetLastRun(float64(time.Now().Unix()), s.RowsUpdated)
	m.AddRows(RowOutcomeWithSignals, int64(s.WithSignals))
	m.AddRows(RowOutcomeInsufficientHistory, int64(s.InsufficientHistory))
	m.AddRows(RowOutcomeNoSignals, int64(s.FallbackRows-s.WithSignals-s.InsufficientHistory))
	if s.ProcedureRows != s.FallbackRows {
		m.IncProcedureDisagreement()
	}
}
