package version

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

// FileStore persists versions in a single JSON document with atomic
// temp-and-rename writes. A corrupt or missing file is treated as an
// empty store.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger logger.Logger
}

// fileDocument is the on-disk layout
type fileDocument struct {
	Versions []*ModelVersion `json:"versions"`
}

// NewFileStore creates a file-backed version store at dir/versions.json
func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{
		path:   filepath.Join(dir, "versions.json"),
		logger: log,
	}, nil
}

// load reads the document; corrupt or missing files yield an empty store
func (s *FileStore) load() *fileDocument {
	doc := &fileDocument{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("version store unreadable, treating as empty", "path", s.path, "error", err.Error())
		}
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("version store corrupt, treating as empty", "path", s.path, "error", err.Error())
		return &fileDocument{}
	}
	return doc
}

// save writes the document atomically
func (s *FileStore) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write version store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace version store: %w", err)
	}
	return nil
}

// Get returns a version by id
func (s *FileStore) Get(ctx context.Context, versionID string) (*ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.load().Versions {
		if v.ID == versionID {
			return v.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, versionID)
}

// Active returns the active version for a strategy
func (s *FileStore) Active(ctx context.Context, strategyID string) (*ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.load().Versions {
		if v.StrategyID == strategyID && v.IsActive {
			return v.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoActive, strategyID)
}

// List returns all versions for a strategy, oldest first
func (s *FileStore) List(ctx context.Context, strategyID string) ([]*ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ModelVersion
	for _, v := range s.load().Versions {
		if v.StrategyID == strategyID {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Promote activates v and deactivates the previous active version in a
// single write
func (s *FileStore) Promote(ctx context.Context, v *ModelVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	for _, existing := range doc.Versions {
		if existing.ID == v.ID {
			return fmt.Errorf("version already exists: %s", v.ID)
		}
	}

	for _, existing := range doc.Versions {
		if existing.StrategyID == v.StrategyID && existing.IsActive {
			existing.IsActive = false
			existing.SupersededBy = v.ID
			existing.Notes = append(existing.Notes,
				auditNote(time.Now(), fmt.Sprintf("superseded by %s", v.ID)))
		}
	}

	promoted := v.Clone()
	promoted.IsActive = true
	doc.Versions = append(doc.Versions, promoted)

	return s.save(doc)
}

// Rollback reinstates toVersionID and deactivates the current active
// version in a single write
func (s *FileStore) Rollback(ctx context.Context, strategyID, toVersionID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()

	var target *ModelVersion
	for _, v := range doc.Versions {
		if v.ID == toVersionID && v.StrategyID == strategyID {
			target = v
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, toVersionID)
	}

	now := time.Now()
	for _, v := range doc.Versions {
		if v.StrategyID == strategyID && v.IsActive && v.ID != toVersionID {
			v.IsActive = false
			v.Notes = append(v.Notes,
				auditNote(now, fmt.Sprintf("rolled back: %s", reason)))
		}
	}

	target.IsActive = true
	target.SupersededBy = ""
	target.Notes = append(target.Notes,
		auditNote(now, fmt.Sprintf("reinstated: %s", reason)))

	return s.save(doc)
}

// AppendNote appends an audit note to a version
func (s *FileStore) AppendNote(ctx context.Context, versionID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	for _, v := range doc.Versions {
		if v.ID == versionID {
			v.Notes = append(v.Notes, auditNote(time.Now(), note))
			return s.save(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, versionID)
}
