package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"quantgate/internal/logger"
)

// StateStore persists scheduler run history and the per-strategy
// pending-confirmation marker
type StateStore interface {
	// LastRun returns when the strategy was last optimized; zero time
	// when it never ran
	LastRun(ctx context.Context, strategy string) (time.Time, error)

	// SaveResult upserts a run result by id and advances the last-run
	// marker
	SaveResult(ctx context.Context, result *OptimizationResult) error

	// Results returns run history for a strategy, oldest first
	Results(ctx context.Context, strategy string) ([]*OptimizationResult, error)

	// Pending returns the pending-confirmation marker, nil when none
	Pending(ctx context.Context, strategy string) (*PendingConfirmation, error)

	// SetPending stores the pending-confirmation marker
	SetPending(ctx context.Context, pending *PendingConfirmation) error

	// ClearPending removes the pending-confirmation marker
	ClearPending(ctx context.Context, strategy string) error
}

// FileStateStore persists scheduler state in a single JSON document with
// atomic temp-and-rename writes. Corrupt or missing files are an empty
// store.
type FileStateStore struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// stateDocument is the on-disk layout
type stateDocument struct {
	LastRuns map[string]time.Time            `json:"last_runs"`
	Results  []*OptimizationResult           `json:"results"`
	Pending  map[string]*PendingConfirmation `json:"pending"`
}

func newStateDocument() *stateDocument {
	return &stateDocument{
		LastRuns: make(map[string]time.Time),
		Pending:  make(map[string]*PendingConfirmation),
	}
}

// NewFileStateStore creates a file-backed state store at
// dir/scheduler.json
func NewFileStateStore(dir string, log logger.Logger) (*FileStateStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStateStore{
		path:   filepath.Join(dir, "scheduler.json"),
		logger: log,
	}, nil
}

func (s *FileStateStore) load() *stateDocument {
	doc := newStateDocument()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("scheduler store unreadable, treating as empty", "path", s.path, "error", err.Error())
		}
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("scheduler store corrupt, treating as empty", "path", s.path, "error", err.Error())
		return newStateDocument()
	}
	if doc.LastRuns == nil {
		doc.LastRuns = make(map[string]time.Time)
	}
	if doc.Pending == nil {
		doc.Pending = make(map[string]*PendingConfirmation)
	}
	return doc
}

func (s *FileStateStore) save(doc *stateDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scheduler store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write scheduler store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace scheduler store: %w", err)
	}
	return nil
}

// LastRun returns the last optimization start time for a strategy
func (s *FileStateStore) LastRun(ctx context.Context, strategy string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().LastRuns[strategy], nil
}

// SaveResult upserts a run result and advances the last-run marker
func (s *FileStateStore) SaveResult(ctx context.Context, result *OptimizationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	replaced := false
	for i, r := range doc.Results {
		if r.ID == result.ID {
			doc.Results[i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Results = append(doc.Results, result)
	}
	if result.StartedAt.After(doc.LastRuns[result.Strategy]) {
		doc.LastRuns[result.Strategy] = result.StartedAt
	}
	return s.save(doc)
}

// Results returns run history for a strategy, oldest first
func (s *FileStateStore) Results(ctx context.Context, strategy string) ([]*OptimizationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*OptimizationResult
	for _, r := range s.load().Results {
		if r.Strategy == strategy {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Pending returns the pending-confirmation marker for a strategy
func (s *FileStateStore) Pending(ctx context.Context, strategy string) (*PendingConfirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load().Pending[strategy], nil
}

// SetPending stores the pending-confirmation marker
func (s *FileStateStore) SetPending(ctx context.Context, pending *PendingConfirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Pending[pending.Strategy] = pending
	return s.save(doc)
}

// ClearPending removes the pending-confirmation marker
func (s *FileStateStore) ClearPending(ctx context.Context, strategy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	delete(doc.Pending, strategy)
	return s.save(doc)
}
