package version

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quantgate/internal/validator"
)

// Store errors
var (
	ErrNotFound = errors.New("version: not found")
	ErrNoActive = errors.New("version: no active version")
)

// ModelVersion represents one accepted, immutable parameter set together
// with the validation evidence that justified it. Only IsActive and
// SupersededBy change after creation, and only during promotion or
// rollback.
type ModelVersion struct {
	ID           string                   `json:"id"`
	StrategyID   string                   `json:"strategy_id"`
	CreatedAt    time.Time                `json:"created_at"`
	Params       map[string]float64       `json:"params"`
	Validation   *validator.MatrixResults `json:"validation,omitempty"`
	IsActive     bool                     `json:"is_active"`
	SupersededBy string                   `json:"superseded_by,omitempty"`
	Notes        []string                 `json:"notes,omitempty"`
}

// ExpectedSharpe returns the validated mean OOS Sharpe of this version,
// the claim live performance is compared against
func (v *ModelVersion) ExpectedSharpe() float64 {
	if v.Validation == nil {
		return 0
	}
	return v.Validation.MeanOOSSharpe
}

// Clone returns a deep copy of the version record
func (v *ModelVersion) Clone() *ModelVersion {
	if v == nil {
		return nil
	}
	clone := *v
	clone.Params = make(map[string]float64, len(v.Params))
	for k, val := range v.Params {
		clone.Params[k] = val
	}
	clone.Notes = append([]string(nil), v.Notes...)
	return &clone
}

// Store is the durable registry of parameter-set versions. Promote and
// Rollback flip is_active/superseded_by atomically: a crash must never
// leave two active versions or drop the only active one.
type Store interface {
	// Get returns a version by id
	Get(ctx context.Context, versionID string) (*ModelVersion, error)

	// Active returns the single active version for a strategy, or
	// ErrNoActive when none has ever been accepted
	Active(ctx context.Context, strategyID string) (*ModelVersion, error)

	// List returns all versions for a strategy, oldest first
	List(ctx context.Context, strategyID string) ([]*ModelVersion, error)

	// Promote persists v as the new active version, deactivating the
	// previously active one and linking it forward to v
	Promote(ctx context.Context, v *ModelVersion) error

	// Rollback reinstates toVersionID as active and deactivates the
	// currently active version, appending audit notes to both
	Rollback(ctx context.Context, strategyID, toVersionID, reason string) error

	// AppendNote appends an audit note to a version
	AppendNote(ctx context.Context, versionID, note string) error
}

// NewVersionID generates a time-ordered unique version id
func NewVersionID() string {
	return fmt.Sprintf("ver_%d", time.Now().UnixNano())
}

// auditNote formats an audit trail entry
func auditNote(now time.Time, msg string) string {
	return fmt.Sprintf("[%s] %s", now.UTC().Format(time.RFC3339), msg)
}
