package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GetStepStates returns every persisted step row for an asset keyed by step
// identifier.
func (s *Store) GetStepStates(ctx context.Context, assetID string) (map[string]*StepState, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+stepColumns+` FROM pipeline_steps WHERE asset_id = ? ORDER BY step_id`,
		assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list step states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]*StepState)
	for rows.Next() {
		state, err := scanStepState(rows)
		if err != nil {
			return nil, err
		}
		states[state.StepID] = state
	}
	return states, rows.Err()
}

// GetStep returns the persisted state of one step for one asset. Returns nil
// when no row exists yet.
func (s *Store) GetStep(ctx context.Context, assetID, stepID string) (*StepState, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+stepColumns+` FROM pipeline_steps WHERE asset_id = ? AND step_id = ?`,
		assetID,
		stepID,
	)
	state, err := scanStepState(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get step state: %w", err)
	}
	return state, nil
}

// PutStep replaces the full persisted state of one step.
func (s *Store) PutStep(ctx context.Context, state *StepState) error {
	metadataJSON, err := encodeMetadata(state.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO pipeline_steps (
            asset_id, step_id, label, status, metadata_json, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(asset_id, step_id) DO UPDATE SET
            label = excluded.label,
            status = excluded.status,
            metadata_json = excluded.metadata_json,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at`,
		state.AssetID,
		state.StepID,
		nullableString(state.Label),
		state.Status,
		metadataJSON,
		nullableString(state.ErrorMessage),
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		return fmt.Errorf("put step state: %w", err)
	}
	return nil
}

// MergeStep applies a partial update to one step, creating the row with idle
// defaults first when it does not exist. Fields absent from the patch keep
// their current values.
func (s *Store) MergeStep(ctx context.Context, assetID, stepID string, patch StepPatch) (*StepState, error) {
	now := timestamp(time.Now().UTC())
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO pipeline_steps (asset_id, step_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		assetID,
		stepID,
		StepIdle,
		now,
		now,
	); err != nil {
		return nil, fmt.Errorf("ensure step row: %w", err)
	}

	clauses := []string{"updated_at = ?"}
	args := []any{now}
	if patch.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Label != nil {
		clauses = append(clauses, "label = ?")
		args = append(args, nullableString(*patch.Label))
	}
	if patch.Metadata != nil {
		metadataJSON, err := encodeMetadata(patch.Metadata)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "metadata_json = ?")
		args = append(args, metadataJSON)
	}
	if patch.ErrorMessage != nil {
		clauses = append(clauses, "error_message = ?")
		args = append(args, nullableString(*patch.ErrorMessage))
	}
	args = append(args, assetID, stepID)

	query := "UPDATE pipeline_steps SET " + strings.Join(clauses, ", ") + " WHERE asset_id = ? AND step_id = ?"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("merge step state: %w", err)
	}
	return s.GetStep(ctx, assetID, stepID)
}

// ListStepsByStatus returns all step rows currently in the given status.
func (s *Store) ListStepsByStatus(ctx context.Context, status StepStatus) ([]*StepState, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+stepColumns+` FROM pipeline_steps WHERE status = ? ORDER BY asset_id, step_id`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps by status: %w", err)
	}
	defer rows.Close()

	var states []*StepState
	for rows.Next() {
		state, err := scanStepState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

const stepColumns = "asset_id, step_id, label, status, metadata_json, error_message, created_at, updated_at"

func scanStepState(scanner interface{ Scan(dest ...any) error }) (*StepState, error) {
	var (
		assetID     string
		stepID      string
		label       sql.NullString
		statusStr   string
		metadataRaw sql.NullString
		errMessage  sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&assetID,
		&stepID,
		&label,
		&statusStr,
		&metadataRaw,
		&errMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	state := &StepState{
		AssetID:      assetID,
		StepID:       stepID,
		Label:        label.String,
		Status:       StepStatus(statusStr),
		ErrorMessage: errMessage.String,
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		metadata := make(map[string]any)
		if err := json.Unmarshal([]byte(metadataRaw.String), &metadata); err != nil {
			return nil, fmt.Errorf("decode step metadata: %w", err)
		}
		state.Metadata = metadata
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		state.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}

func encodeMetadata(metadata map[string]any) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode step metadata: %w", err)
	}
	return string(data), nil
}
