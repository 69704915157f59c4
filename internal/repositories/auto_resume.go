package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/shared"
)

var _ models.Repository[*models.AutoResume] = (*AutoResumeRepository)(nil)

const autoResumeColumns = `id, user_id, status, paused_reason, paused_until, last_attempt_at, next_attempt_at,
	consecutive_failures, last_error, version, created_at, updated_at`

// AutoResumeRepository implements models.Repository[*models.AutoResume].
//
// Updates are compare-and-set on the record version: a writer holding a stale copy gets [shared.ErrStaleRecord].
type AutoResumeRepository struct {
	q Querier
}

// NewAutoResumeRepository creates a new AutoResumeRepository with the given database connection
func NewAutoResumeRepository(q Querier) *AutoResumeRepository {
	return &AutoResumeRepository{q: q}
}

// Create inserts a new record at version 1
func (r *AutoResumeRepository) Create(ctx context.Context, rec *models.AutoResume) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()
	query := `
		INSERT INTO auto_resume (` + autoResumeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, query,
		id,
		rec.UserID,
		string(rec.Status),
		string(rec.PausedReason),
		nullTime(rec.PausedUntil),
		nullTime(rec.LastAttemptAt),
		nullTime(rec.NextAttemptAt),
		rec.ConsecutiveFailures,
		rec.LastError,
		rec.CreatedAt(),
		rec.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert auto-resume record: %w", err)
	}

	rec.SetID(id)
	rec.Version = 1
	return nil
}

// Get retrieves a record by ID
func (r *AutoResumeRepository) Get(ctx context.Context, id string) (*models.AutoResume, error) {
	query := `SELECT ` + autoResumeColumns + ` FROM auto_resume WHERE id = ?`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByUser retrieves the user's record. Wraps [shared.ErrNotFound] when the user never enabled auto-resume.
func (r *AutoResumeRepository) GetByUser(ctx context.Context, userID string) (*models.AutoResume, error) {
	query := `SELECT ` + autoResumeColumns + ` FROM auto_resume WHERE user_id = ?`
	return r.scanOne(r.q.QueryRowContext(ctx, query, userID))
}

// Update saves rec if nobody else saved it since it was read, then bumps rec.Version.
func (r *AutoResumeRepository) Update(ctx context.Context, rec *models.AutoResume) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE auto_resume
		SET status = ?, paused_reason = ?, paused_until = ?, last_attempt_at = ?, next_attempt_at = ?,
			consecutive_failures = ?, last_error = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := r.q.ExecContext(ctx, query,
		string(rec.Status),
		string(rec.PausedReason),
		nullTime(rec.PausedUntil),
		nullTime(rec.LastAttemptAt),
		nullTime(rec.NextAttemptAt),
		rec.ConsecutiveFailures,
		rec.LastError,
		rec.UpdatedAt(),
		rec.ID(),
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update auto-resume record: %w", err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: auto-resume %s at version %d", shared.ErrStaleRecord, rec.ID(), rec.Version)
	}

	rec.Version++
	return nil
}

// List retrieves all records matching the given criteria.
//
// Supported criteria: "status" ([]models.ResumeStatus or models.ResumeStatus).
func (r *AutoResumeRepository) List(ctx context.Context, criteria map[string]any) ([]*models.AutoResume, error) {
	query := `SELECT ` + autoResumeColumns + ` FROM auto_resume WHERE 1 = 1`
	args := []any{}

	var statuses []models.ResumeStatus
	switch s := criteria["status"].(type) {
	case models.ResumeStatus:
		statuses = []models.ResumeStatus{s}
	case []models.ResumeStatus:
		statuses = s
	}
	if len(statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(",?", len(statuses)-1) + ")"
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-resume records: %w", err)
	}
	defer rows.Close()

	var records []*models.AutoResume
	for rows.Next() {
		rec, err := scanAutoResume(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// ListEnabled returns every record that is not disabled.
func (r *AutoResumeRepository) ListEnabled(ctx context.Context) ([]*models.AutoResume, error) {
	return r.List(ctx, map[string]any{
		"status": []models.ResumeStatus{models.ResumeActive, models.ResumePaused},
	})
}

func (r *AutoResumeRepository) scanOne(row *sql.Row) (*models.AutoResume, error) {
	rec, err := scanAutoResume(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: auto-resume record", shared.ErrNotFound)
	}
	return rec, err
}

func scanAutoResume(row rowScanner) (*models.AutoResume, error) {
	var (
		rec           models.AutoResume
		id            string
		status        string
		reason        string
		pausedUntil   sql.NullTime
		lastAttemptAt sql.NullTime
		nextAttemptAt sql.NullTime
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&id,
		&rec.UserID,
		&status,
		&reason,
		&pausedUntil,
		&lastAttemptAt,
		&nextAttemptAt,
		&rec.ConsecutiveFailures,
		&rec.LastError,
		&rec.Version,
		&createdAt,
		&updatedAt,
	)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan auto-resume record: %w", err)
	}

	rec.SetID(id)
	rec.SetCreatedAt(createdAt)
	rec.SetUpdatedAt(updatedAt)
	rec.Status = models.ResumeStatus(status)
	rec.PausedReason = models.PausedReason(reason)
	rec.PausedUntil = timePtr(pausedUntil)
	rec.LastAttemptAt = timePtr(lastAttemptAt)
	rec.NextAttemptAt = timePtr(nextAttemptAt)
	return &rec, nil
}
