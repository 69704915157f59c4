package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/shared"
)

var _ models.Repository[*models.Source] = (*SourceRepository)(nil)

const sourceColumns = `id, sequence, user_id, kind, external_id, title, cursor, completed, imported_count, last_fetched_at, created_at, updated_at`

// SourceRepository implements models.Repository[*models.Source].
type SourceRepository struct {
	q Querier
}

// NewSourceRepository creates a new SourceRepository with the given database connection
func NewSourceRepository(q Querier) *SourceRepository {
	return &SourceRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *SourceRepository) WithTx(tx *sql.Tx) *SourceRepository {
	return &SourceRepository{q: tx}
}

// Create inserts a new source with generated ID and sequence
func (r *SourceRepository) Create(ctx context.Context, source *models.Source) error {
	created, err := r.CreateIfAbsent(ctx, source)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("source %s %s already registered for user %s", source.Kind, source.ExternalID, source.UserID)
	}
	return nil
}

// CreateIfAbsent inserts source unless the user already registered the same kind and external id.
//
// Returns false, leaving source untouched, when a row already exists.
func (r *SourceRepository) CreateIfAbsent(ctx context.Context, source *models.Source) (bool, error) {
	if err := source.Validate(); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.q, "sources")
	if err != nil {
		return false, fmt.Errorf("failed to generate sequence: %w", err)
	}
	id := shared.GenerateID()

	query := `
		INSERT INTO sources (id, sequence, user_id, kind, external_id, title, cursor, completed, imported_count, last_fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, kind, external_id) DO NOTHING
	`

	res, err := r.q.ExecContext(ctx, query,
		id,
		sequence,
		source.UserID,
		string(source.Kind),
		source.ExternalID,
		source.Title,
		nullCursor(source.Cursor),
		source.Completed,
		source.ImportedCount,
		nullTime(source.LastFetchedAt),
		source.CreatedAt(),
		source.UpdatedAt(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert source: %w", err)
	}

	n, err := affected(res)
	if err != nil || n == 0 {
		return false, err
	}

	source.SetID(id)
	source.SetSequence(sequence)
	return true, nil
}

// Get retrieves a source by ID
func (r *SourceRepository) Get(ctx context.Context, id string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = ?`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByExternalID retrieves a user's source by kind and external id
func (r *SourceRepository) GetByExternalID(ctx context.Context, userID string, kind models.SourceKind, externalID string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE user_id = ? AND kind = ? AND external_id = ?`
	return r.scanOne(r.q.QueryRowContext(ctx, query, userID, string(kind), externalID))
}

// Update writes the mutable columns of source
func (r *SourceRepository) Update(ctx context.Context, source *models.Source) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE sources
		SET title = ?, cursor = ?, completed = ?, imported_count = ?, last_fetched_at = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.q.ExecContext(ctx, query,
		source.Title,
		nullCursor(source.Cursor),
		source.Completed,
		source.ImportedCount,
		nullTime(source.LastFetchedAt),
		source.UpdatedAt(),
		source.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: source %s", shared.ErrNotFound, source.ID())
	}
	return nil
}

// Advance moves a source to next, adds imported to its running count and marks it completed iff next is nil.
func (r *SourceRepository) Advance(ctx context.Context, id string, next *models.Cursor, imported int, now time.Time) error {
	query := `
		UPDATE sources
		SET cursor = ?, completed = ?, imported_count = imported_count + ?, last_fetched_at = ?, updated_at = ?
		WHERE id = ?
	`

	now = now.UTC()
	res, err := r.q.ExecContext(ctx, query, nullCursor(next), next == nil, imported, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to advance source: %w", err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: source %s", shared.ErrNotFound, id)
	}
	return nil
}

// List retrieves all sources matching the given criteria in creation order.
//
// Supported criteria: "user_id" (string), "kind" (models.SourceKind), "completed" (bool).
func (r *SourceRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE 1 = 1`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	if kind, ok := criteria["kind"].(models.SourceKind); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	if completed, ok := criteria["completed"].(bool); ok {
		query += " AND completed = ?"
		args = append(args, completed)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sources, nil
}

// ListIncomplete returns the user's incomplete sources in creation order.
func (r *SourceRepository) ListIncomplete(ctx context.Context, userID string) ([]*models.Source, error) {
	return r.List(ctx, map[string]any{"user_id": userID, "completed": false})
}

// SourceCounts summarizes a user's sources by progress.
type SourceCounts struct {
	Total      int
	Completed  int
	InProgress int // incomplete, fetched at least once
	Pending    int // incomplete, never fetched
}

// Counts aggregates the user's sources by progress.
func (r *SourceRepository) Counts(ctx context.Context, userID string) (SourceCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN completed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN completed = 0 AND last_fetched_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN completed = 0 AND last_fetched_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM sources
		WHERE user_id = ?
	`

	var c SourceCounts
	if err := r.q.QueryRowContext(ctx, query, userID).Scan(&c.Total, &c.Completed, &c.InProgress, &c.Pending); err != nil {
		return SourceCounts{}, fmt.Errorf("failed to count sources: %w", err)
	}
	return c, nil
}

// scanOne scans a single row into a [models.Source]
func (r *SourceRepository) scanOne(row *sql.Row) (*models.Source, error) {
	source, err := scanSource(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: source", shared.ErrNotFound)
	}
	return source, err
}

func scanSource(row rowScanner) (*models.Source, error) {
	var (
		source        models.Source
		id            string
		sequence      int
		kind          string
		cursor        sql.NullString
		lastFetchedAt sql.NullTime
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&id,
		&sequence,
		&source.UserID,
		&kind,
		&source.ExternalID,
		&source.Title,
		&cursor,
		&source.Completed,
		&source.ImportedCount,
		&lastFetchedAt,
		&createdAt,
		&updatedAt,
	)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}

	source.SetID(id)
	source.SetSequence(sequence)
	source.SetCreatedAt(createdAt)
	source.SetUpdatedAt(updatedAt)
	source.Kind = models.SourceKind(kind)
	if cursor.Valid {
		source.Cursor = models.CursorPtr(cursor.String)
	}
	source.LastFetchedAt = timePtr(lastFetchedAt)
	return &source, nil
}

func nullCursor(c *models.Cursor) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*c), Valid: true}
}
