package version

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quantgate/internal/validator"
)

// PostgresStore persists versions in Postgres. Promotion and rollback run
// in a single transaction so the active flag can never be split across
// two versions by a crash.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed version store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// scanVersion reads one row into a ModelVersion
func scanVersion(row interface{ Scan(...interface{}) error }) (*ModelVersion, error) {
	var (
		v              ModelVersion
		paramsJSON     []byte
		validationJSON []byte
		notesJSON      []byte
		supersededBy   sql.NullString
	)

	err := row.Scan(&v.ID, &v.StrategyID, &v.CreatedAt, &paramsJSON, &validationJSON, &v.IsActive, &supersededBy, &notesJSON)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(paramsJSON, &v.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	if len(validationJSON) > 0 {
		var results validator.MatrixResults
		if err := json.Unmarshal(validationJSON, &results); err != nil {
			return nil, fmt.Errorf("failed to decode validation: %w", err)
		}
		v.Validation = &results
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &v.Notes); err != nil {
			return nil, fmt.Errorf("failed to decode notes: %w", err)
		}
	}
	v.SupersededBy = supersededBy.String
	return &v, nil
}

const versionColumns = "id, strategy_id, created_at, params, validation, is_active, superseded_by, notes"

// Get returns a version by id
func (s *PostgresStore) Get(ctx context.Context, versionID string) (*ModelVersion, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+versionColumns+" FROM model_versions WHERE id = $1", versionID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query version: %w", err)
	}
	return v, nil
}

// Active returns the active version for a strategy
func (s *PostgresStore) Active(ctx context.Context, strategyID string) (*ModelVersion, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+versionColumns+" FROM model_versions WHERE strategy_id = $1 AND is_active", strategyID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoActive, strategyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active version: %w", err)
	}
	return v, nil
}

// List returns all versions for a strategy, oldest first
func (s *PostgresStore) List(ctx context.Context, strategyID string) ([]*ModelVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+versionColumns+" FROM model_versions WHERE strategy_id = $1 ORDER BY created_at", strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []*ModelVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Promote activates v and deactivates the previous active version in one
// transaction
func (s *PostgresStore) Promote(ctx context.Context, v *ModelVersion) error {
	paramsJSON, err := json.Marshal(v.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	var validationJSON []byte
	if v.Validation != nil {
		if validationJSON, err = json.Marshal(v.Validation); err != nil {
			return fmt.Errorf("failed to encode validation: %w", err)
		}
	}
	notesJSON, err := json.Marshal(v.Notes)
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin promotion: %w", err)
	}
	defer tx.Rollback()

	note, err := json.Marshal(auditNote(time.Now(), fmt.Sprintf("superseded by %s", v.ID)))
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE model_versions
		SET is_active = false,
		    superseded_by = $1,
		    notes = COALESCE(notes, '[]'::jsonb) || $2::jsonb
		WHERE strategy_id = $3 AND is_active`,
		v.ID, string(note), v.StrategyID)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO model_versions (id, strategy_id, created_at, params, validation, is_active, superseded_by, notes)
		VALUES ($1, $2, $3, $4, $5, true, NULL, $6)`,
		v.ID, v.StrategyID, v.CreatedAt, paramsJSON, validationJSON, notesJSON)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}
	return nil
}

// Rollback reinstates toVersionID and deactivates the current active
// version in one transaction
func (s *PostgresStore) Rollback(ctx context.Context, strategyID, toVersionID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rollback: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	deactivateNote, err := json.Marshal(auditNote(now, fmt.Sprintf("rolled back: %s", reason)))
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE model_versions
		SET is_active = false,
		    notes = COALESCE(notes, '[]'::jsonb) || $1::jsonb
		WHERE strategy_id = $2 AND is_active AND id <> $3`,
		string(deactivateNote), strategyID, toVersionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate version: %w", err)
	}

	reinstateNote, err := json.Marshal(auditNote(now, fmt.Sprintf("reinstated: %s", reason)))
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE model_versions
		SET is_active = true,
		    superseded_by = NULL,
		    notes = COALESCE(notes, '[]'::jsonb) || $1::jsonb
		WHERE strategy_id = $2 AND id = $3`,
		string(reinstateNote), strategyID, toVersionID)
	if err != nil {
		return fmt.Errorf("failed to reinstate version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rollback target: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, toVersionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	return nil
}

// AppendNote appends an audit note to a version
func (s *PostgresStore) AppendNote(ctx context.Context, versionID, note string) error {
	encoded, err := json.Marshal(auditNote(time.Now(), note))
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE model_versions
		SET notes = COALESCE(notes, '[]'::jsonb) || $1::jsonb
		WHERE id = $2`,
		string(encoded), versionID)
	if err != nil {
		return fmt.Errorf("failed to append note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check note target: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, versionID)
	}
	return nil
}
