package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/cardpulse/internal/refresh"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestDBChecker(t *testing.T) {
	if err := NewDBChecker(fakePinger{}).HealthCheck(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	down := errors.New("connection refused")
	if err := NewDBChecker(fakePinger{err: down}).HealthCheck(context.Background()); !errors.Is(err, down) {
		t.Errorf("expected %v, got %v", down, err)
	}
	if NewDBChecker(fakePinger{}).Name() != "database" {
		t.Error("unexpected name")
	}
}

func TestRedisChecker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	checker := NewRedisChecker(client)
	if checker.Name() != "redis" {
		t.Error("unexpected name")
	}
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for unreachable Redis")
	}
}

func TestRedisChecker_CanceledContext(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewRedisChecker(client).HealthCheck(ctx); err == nil {
		t.Error("expected error for canceled context")
	}
}

type errStatusStore struct{ err error }

func (e errStatusStore) SaveStatus(context.Context, refresh.Status) error { return e.err }
func (e errStatusStore) LoadStatus(context.Context) (*refresh.Status, error) {
	return nil, e.err
}

func TestRefreshChecker(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	success := &refresh.Summary{StartedAt: now.Add(-90 * time.Minute), Duration: 5 * time.Minute}

	tests := []struct {
		name    string
		status  *refresh.Status
		wantErr error
	}{
		{name: "never ran", status: nil, wantErr: ErrNoRefreshYet},
		{name: "only failures", status: &refresh.Status{LastError: "boom", ConsecutiveFailures: 1}, wantErr: ErrNoRefreshYet},
		{name: "fresh", status: &refresh.Status{LastSuccess: success}},
		{
			name:    "stale",
			status:  &refresh.Status{LastSuccess: &refresh.Summary{StartedAt: now.Add(-4 * time.Hour)}},
			wantErr: ErrRefreshStale,
		},
		{
			name:    "failing streak",
			status:  &refresh.Status{LastSuccess: success, LastError: "timeout", ConsecutiveFailures: 3},
			wantErr: ErrRefreshFailed,
		},
		{
			name:   "short streak tolerated",
			status: &refresh.Status{LastSuccess: success, ConsecutiveFailures: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := refresh.NewInMemoryStatusStore()
			if tt.status != nil {
				if err := store.SaveStatus(context.Background(), *tt.status); err != nil {
					t.Fatalf("SaveStatus: %v", err)
				}
			}
			checker := NewRefreshChecker(store, 2*time.Hour, 3)
			checker.now = func() time.Time { return now }

			err := checker.HealthCheck(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected healthy, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRefreshChecker_StoreError(t *testing.T) {
	down := errors.New("redis down")
	err := NewRefreshChecker(errStatusStore{err: down}, time.Hour, 0).HealthCheck(context.Background())
	if !errors.Is(err, down) {
		t.Errorf("error = %v, want wrapped %v", err, down)
	}
}
