package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"quantgate/internal/logger"
)

// FileRecordStore persists one JSON document per strategy with atomic
// temp-and-rename writes. A corrupt or missing file is an empty record
// set, never an error.
type FileRecordStore struct {
	dir    string
	mu     sync.Mutex
	logger logger.Logger
}

// NewFileRecordStore creates a file-backed tracker store under
// dir/tracker
func NewFileRecordStore(dir string, log logger.Logger) (*FileRecordStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	path := filepath.Join(dir, "tracker")
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tracker directory: %w", err)
	}
	return &FileRecordStore{
		dir:    path,
		logger: log,
	}, nil
}

// path builds the per-strategy file path, sanitizing the strategy name
func (s *FileRecordStore) path(strategy string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strategy)
	return filepath.Join(s.dir, safe+".json")
}

// Load reads tracker records for a strategy
func (s *FileRecordStore) Load(ctx context.Context, strategy string) (*StrategyRecords, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := &StrategyRecords{}
	data, err := os.ReadFile(s.path(strategy))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("tracker store unreadable, treating as empty", "strategy", strategy, "error", err.Error())
		}
		return records, nil
	}
	if err := json.Unmarshal(data, records); err != nil {
		s.logger.Warn("tracker store corrupt, treating as empty", "strategy", strategy, "error", err.Error())
		return &StrategyRecords{}, nil
	}
	return records, nil
}

// Save writes tracker records for a strategy atomically
func (s *FileRecordStore) Save(ctx context.Context, strategy string, records *StrategyRecords) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tracker records: %w", err)
	}

	path := s.path(strategy)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write tracker records: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace tracker records: %w", err)
	}
	return nil
}
