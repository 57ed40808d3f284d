package library

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewJob describes the inputs for recording a provider job.
type NewJob struct {
	Kind       JobKind
	AssetID    string
	ProjectID  string
	ParamsJSON string
}

// CreateJob records a new pending job and returns it.
func (s *Store) CreateJob(ctx context.Context, input NewJob) (*Job, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Kind:       input.Kind,
		Status:     JobPending,
		AssetID:    strings.TrimSpace(input.AssetID),
		ProjectID:  strings.TrimSpace(input.ProjectID),
		ParamsJSON: input.ParamsJSON,
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, kind, status, asset_id, project_id, params_json,
            provider_handle, progress, result_asset_id, result_asset_path,
            error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, NULL, 0, NULL, NULL, NULL, ?, ?)`,
		job.ID,
		job.Kind,
		job.Status,
		nullableString(job.AssetID),
		nullableString(job.ProjectID),
		nullableString(job.ParamsJSON),
		timestamp(now),
		timestamp(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by identifier. Returns nil when not found.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs ordered newest first. Filter fields combine with
// AND; the zero filter returns everything.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if assetID := strings.TrimSpace(filter.AssetID); assetID != "" {
		clauses = append(clauses, "asset_id = ?")
		args = append(args, assetID)
	}
	if projectID := strings.TrimSpace(filter.ProjectID); projectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, projectID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FindActiveJob returns the newest non-terminal job matching the kind,
// owning asset, and parameters, or nil when none is in flight. Jobs with no
// owning asset (pure generation) only dedupe against other asset-less jobs.
// Used to dedupe identical submissions.
func (s *Store) FindActiveJob(ctx context.Context, kind JobKind, assetID, paramsJSON string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE kind = ? AND asset_id IS ? AND params_json = ? AND status IN (?, ?)
         ORDER BY created_at DESC LIMIT 1`,
		kind,
		nullableString(strings.TrimSpace(assetID)),
		paramsJSON,
		JobPending,
		JobRunning,
	)
	job, err := scanJob(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return job, nil
}

// MergeJob applies a partial update to a job. Fields absent from the patch
// keep their current values.
func (s *Store) MergeJob(ctx context.Context, id string, patch JobPatch) (*Job, error) {
	clauses := []string{"updated_at = ?"}
	args := []any{timestamp(time.Now().UTC())}
	if patch.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.ProviderHandle != nil {
		clauses = append(clauses, "provider_handle = ?")
		args = append(args, nullableString(*patch.ProviderHandle))
	}
	if patch.Progress != nil {
		clauses = append(clauses, "progress = ?")
		args = append(args, *patch.Progress)
	}
	if patch.ResultAssetID != nil {
		clauses = append(clauses, "result_asset_id = ?")
		args = append(args, nullableString(*patch.ResultAssetID))
	}
	if patch.ResultAssetPath != nil {
		clauses = append(clauses, "result_asset_path = ?")
		args = append(args, nullableString(*patch.ResultAssetPath))
	}
	if patch.ErrorMessage != nil {
		clauses = append(clauses, "error_message = ?")
		args = append(args, nullableString(*patch.ErrorMessage))
	}
	args = append(args, id)

	query := "UPDATE jobs SET " + strings.Join(clauses, ", ") + " WHERE id = ?"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("merge job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("merge job rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetJob(ctx, id)
}

const jobColumns = "id, kind, status, asset_id, project_id, params_json, provider_handle, progress, result_asset_id, result_asset_path, error_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		kindStr      string
		statusStr    string
		assetID      sql.NullString
		projectID    sql.NullString
		paramsJSON   sql.NullString
		handle       sql.NullString
		progress     float64
		resultID     sql.NullString
		resultPath   sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id,
		&kindStr,
		&statusStr,
		&assetID,
		&projectID,
		&paramsJSON,
		&handle,
		&progress,
		&resultID,
		&resultPath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Kind:            JobKind(kindStr),
		Status:          JobStatus(statusStr),
		AssetID:         assetID.String,
		ProjectID:       projectID.String,
		ParamsJSON:      paramsJSON.String,
		ProviderHandle:  handle.String,
		Progress:        progress,
		ResultAssetID:   resultID.String,
		ResultAssetPath: resultPath.String,
		ErrorMessage:    errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
