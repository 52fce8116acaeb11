package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/cardpulse/internal/refresh"
)

// Freshness errors.
var (
	ErrNoRefreshYet  = errors.New("signal refresh has never succeeded")
	ErrRefreshStale  = errors.New("signal refresh is stale")
	ErrRefreshFailed = errors.New("signal refresh is failing")
)

// RefreshChecker reports unhealthy when the last successful signal refresh
// finished more than MaxAge ago or the job has failed MaxFailures times in a row.
type RefreshChecker struct {
	store       refresh.StatusStore
	maxAge      time.Duration
	maxFailures int
	now         func() time.Time
}

// NewRefreshChecker creates a checker over store. maxFailures <= 0 disables
// the failure streak check.
func NewRefreshChecker(store refresh.StatusStore, maxAge time.Duration, maxFailures int) *RefreshChecker {
	return &RefreshChecker{
		store:       store,
		maxAge:      maxAge,
		maxFailures: maxFailures,
		now:         time.Now,
	}
}

// Name implements api.HealthChecker.
func (c *RefreshChecker) Name() string { return "signal_refresh" }

// HealthCheck implements api.HealthChecker.
func (c *RefreshChecker) HealthCheck(ctx context.Context) error {
	st, err := c.store.LoadStatus(ctx)
	if err != nil {
		return fmt.Errorf("load refresh status: %w", err)
	}
	if st == nil || st.LastSuccess == nil {
		return ErrNoRefreshYet
	}
	if c.maxFailures > 0 && st.ConsecutiveFailures >= c.maxFailures {
		return fmt.Errorf("%w: %d consecutive failures, last: %s", ErrRefreshFailed, st.ConsecutiveFailures, st.LastError)
	}

	finished := st.LastSuccess.StartedAt.Add(st.LastSuccess.Duration)
	if age := c.now().Sub(finished); age > c.maxAge {
		return fmt.Errorf("%w: last success %s ago", ErrRefreshStale, age.Round(time.Second))
	}
	return nil
}
