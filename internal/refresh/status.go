package refresh

import (
	"context"
	"sync"
	"time"
)

// Status is the externally visible state of the refresh job.
type Status struct {
	LastAttemptAt time.Time `json:"last_attempt_at"`
	LastSuccess   *Summary  `json:"last_success,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	// ConsecutiveFailures resets on every successful run.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// StatusStore persists the job Status between processes.
type StatusStore interface {
	SaveStatus(ctx context.Context, s Status) error
	// LoadStatus returns nil, nil when nothing has been saved.
	LoadStatus(ctx context.Context) (*Status, error)
}

// InMemoryStatusStore is an in-memory StatusStore.
type InMemoryStatusStore struct {
	mu     sync.RWMutex
	status *Status
}

// NewInMemoryStatusStore creates an empty InMemoryStatusStore.
func NewInMemoryStatusStore() *InMemoryStatusStore {
	return &InMemoryStatusStore{}
}

// SaveStatus implements StatusStore.
func (s *InMemoryStatusStore) SaveStatus(_ context.Context, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.LastSuccess = cloneSummary(st.LastSuccess)
	s.status = &st
	return nil
}

// LoadStatus implements StatusStore.
func (s *InMemoryStatusStore) LoadStatus(_ context.Context) (*Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == nil {
		return nil, nil
	}
	out := *s.status
	out.LastSuccess = cloneSummary(out.LastSuccess)
	return &out, nil
}

func cloneSummary(s *Summary) *Summary {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
