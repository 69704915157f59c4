package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/shared"
)

var _ models.Repository[*models.Video] = (*VideoRepository)(nil)

const videoColumns = `id, sequence, user_id, video_id, title, channel_id, channel_title, language, is_english,
	source_id, source_kind, source_external_id, source_title, published_at, thumbnail_url, created_at, updated_at`

// VideoRepository implements models.Repository[*models.Video].
//
// Videos are unique per (user_id, video_id); the first source to insert a video keeps the attribution.
type VideoRepository struct {
	q Querier
}

// NewVideoRepository creates a new VideoRepository with the given database connection
func NewVideoRepository(q Querier) *VideoRepository {
	return &VideoRepository{q: q}
}

// WithTx returns a copy of the repository bound to tx.
func (r *VideoRepository) WithTx(tx *sql.Tx) *VideoRepository {
	return &VideoRepository{q: tx}
}

// Create inserts a new video, failing if the user already has it
func (r *VideoRepository) Create(ctx context.Context, video *models.Video) error {
	created, err := r.InsertIfAbsent(ctx, video)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("video %s already imported for user %s", video.VideoID, video.UserID)
	}
	return nil
}

// InsertIfAbsent inserts video unless the user already has a row for its video id.
//
// Returns true when a new row was written.
func (r *VideoRepository) InsertIfAbsent(ctx context.Context, video *models.Video) (bool, error) {
	if err := video.Validate(); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.q, "videos")
	if err != nil {
		return false, fmt.Errorf("failed to generate sequence: %w", err)
	}
	id := shared.GenerateID()

	query := `
		INSERT INTO videos (` + videoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, video_id) DO NOTHING
	`

	res, err := r.q.ExecContext(ctx, query,
		id,
		sequence,
		video.UserID,
		video.VideoID,
		video.Title,
		video.ChannelID,
		video.ChannelTitle,
		video.Language,
		video.IsEnglish,
		video.SourceID,
		string(video.SourceKind),
		video.SourceExternalID,
		video.SourceTitle,
		nullTime(video.PublishedAt),
		video.ThumbnailURL,
		video.CreatedAt(),
		video.UpdatedAt(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert video: %w", err)
	}

	n, err := affected(res)
	if err != nil || n == 0 {
		return false, err
	}

	video.SetID(id)
	video.SetSequence(sequence)
	return true, nil
}

// AddOrigin records that the user's video was seen in sourceID. Returns true if the pair is new.
func (r *VideoRepository) AddOrigin(ctx context.Context, userID, videoID, sourceID string, now time.Time) (bool, error) {
	query := `
		INSERT INTO video_origins (user_id, video_id, source_id, first_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, video_id, source_id) DO NOTHING
	`

	res, err := r.q.ExecContext(ctx, query, userID, videoID, sourceID, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record video origin: %w", err)
	}

	n, err := affected(res)
	return n > 0, err
}

// Origins lists the ids of every source the user's video was seen in, in discovery order.
func (r *VideoRepository) Origins(ctx context.Context, userID, videoID string) ([]string, error) {
	query := `
		SELECT source_id FROM video_origins
		WHERE user_id = ? AND video_id = ?
		ORDER BY first_seen_at ASC, source_id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, userID, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query video origins: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan video origin: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

// Get retrieves a video by ID
func (r *VideoRepository) Get(ctx context.Context, id string) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = ?`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByVideoID retrieves a user's video by its external id
func (r *VideoRepository) GetByVideoID(ctx context.Context, userID, videoID string) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE user_id = ? AND video_id = ?`
	return r.scanOne(r.q.QueryRowContext(ctx, query, userID, videoID))
}

// Update refreshes a video's metadata. Attribution columns are never rewritten.
func (r *VideoRepository) Update(ctx context.Context, video *models.Video) error {
	if err := video.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE videos
		SET title = ?, channel_id = ?, channel_title = ?, language = ?, is_english = ?, published_at = ?, thumbnail_url = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.q.ExecContext(ctx, query,
		video.Title,
		video.ChannelID,
		video.ChannelTitle,
		video.Language,
		video.IsEnglish,
		nullTime(video.PublishedAt),
		video.ThumbnailURL,
		video.UpdatedAt(),
		video.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: video %s", shared.ErrNotFound, video.ID())
	}
	return nil
}

// List retrieves all videos matching the given criteria in import order.
//
// Supported criteria: "user_id" (string), "source_id" (string), "is_english" (bool).
func (r *VideoRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE 1 = 1`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	if sourceID, ok := criteria["source_id"].(string); ok && sourceID != "" {
		query += " AND source_id = ?"
		args = append(args, sourceID)
	}

	if english, ok := criteria["is_english"].(bool); ok {
		query += " AND is_english = ?"
		args = append(args, english)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return videos, nil
}

// Counts returns the user's total and English video counts.
func (r *VideoRepository) Counts(ctx context.Context, userID string) (total, english int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(is_english), 0) FROM videos WHERE user_id = ?`
	if err := r.q.QueryRowContext(ctx, query, userID).Scan(&total, &english); err != nil {
		return 0, 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return total, english, nil
}

// LastImportedAt returns when the user's most recent video was imported, or nil if none was.
func (r *VideoRepository) LastImportedAt(ctx context.Context, userID string) (*time.Time, error) {
	query := `SELECT created_at FROM videos WHERE user_id = ? ORDER BY sequence DESC LIMIT 1`

	var createdAt time.Time
	err := r.q.QueryRowContext(ctx, query, userID).Scan(&createdAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last import: %w", err)
	}

	createdAt = createdAt.UTC()
	return &createdAt, nil
}

// scanOne scans a single row into a [models.Video]
func (r *VideoRepository) scanOne(row *sql.Row) (*models.Video, error) {
	video, err := scanVideo(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: video", shared.ErrNotFound)
	}
	return video, err
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var (
		video       models.Video
		id          string
		sequence    int
		sourceKind  string
		publishedAt sql.NullTime
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(
		&id,
		&sequence,
		&video.UserID,
		&video.VideoID,
		&video.Title,
		&video.ChannelID,
		&video.ChannelTitle,
		&video.Language,
		&video.IsEnglish,
		&video.SourceID,
		&sourceKind,
		&video.SourceExternalID,
		&video.SourceTitle,
		&publishedAt,
		&video.ThumbnailURL,
		&createdAt,
		&updatedAt,
	)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}

	video.SetID(id)
	video.SetSequence(sequence)
	video.SetCreatedAt(createdAt)
	video.SetUpdatedAt(updatedAt)
	video.SourceKind = models.SourceKind(sourceKind)
	video.PublishedAt = timePtr(publishedAt)
	return &video, nil
}
