package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/shared"
)

// ExportInitResult summarizes an export initialization.
type ExportInitResult struct {
	PlaylistSources  int `json:"playlistSources"`
	ChannelSources   int `json:"channelSources"`
	TotalSources     int `json:"totalSources"`
	AlreadyCompleted int `json:"alreadyCompleted"`
}

// Registry is the set of sources registered for each user's export.
type Registry struct {
	db      *sql.DB
	sources *repositories.SourceRepository
	clock   shared.Clock
}

// NewRegistry creates a Registry over db.
func NewRegistry(db *sql.DB, clock shared.Clock) *Registry {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Registry{db: db, sources: repositories.NewSourceRepository(db), clock: clock}
}

// ListIncomplete returns the user's incomplete sources in creation order.
func (r *Registry) ListIncomplete(ctx context.Context, userID string) ([]*models.Source, error) {
	return r.sources.ListIncomplete(ctx, userID)
}

// WithTx returns a copy of the registry whose reads and writes go through tx.
func (r *Registry) WithTx(tx *sql.Tx) *Registry {
	return &Registry{db: r.db, sources: r.sources.WithTx(tx), clock: r.clock}
}

// Advance sets the source's cursor, adds imported to its count and completes it iff next is nil.
func (r *Registry) Advance(ctx context.Context, sourceID string, next *models.Cursor, imported int) error {
	return r.sources.Advance(ctx, sourceID, next, imported, r.clock())
}

// Initialize registers every selected playlist and channel that the user has not registered yet.
//
// Re-running with the same selection creates nothing; AlreadyCompleted counts selected sources
// whose export had finished before this call.
func (r *Registry) Initialize(ctx context.Context, userID string, playlists, channels []models.SourceRef) (*ExportInitResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	playlists, err := dedupeRefs(playlists)
	if err != nil {
		return nil, err
	}
	channels, err = dedupeRefs(channels)
	if err != nil {
		return nil, err
	}
	if len(playlists)+len(channels) == 0 {
		return nil, fmt.Errorf("%w: at least one playlist or channel", shared.ErrMissingArgument)
	}

	result := &ExportInitResult{
		PlaylistSources: len(playlists),
		ChannelSources:  len(channels),
		TotalSources:    len(playlists) + len(channels),
	}

	now := r.clock()
	err = repositories.InTx(ctx, r.db, func(tx *sql.Tx) error {
		sources := r.sources.WithTx(tx)
		for _, group := range []struct {
			kind models.SourceKind
			refs []models.SourceRef
		}{
			{models.SourcePlaylist, playlists},
			{models.SourceChannel, channels},
		} {
			for _, ref := range group.refs {
				completed, err := register(ctx, sources, userID, group.kind, ref, now)
				if err != nil {
					return err
				}
				if completed {
					result.AlreadyCompleted++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// register creates the source if absent and reports whether an existing row is already completed.
func register(ctx context.Context, sources *repositories.SourceRepository, userID string, kind models.SourceKind, ref models.SourceRef, now time.Time) (bool, error) {
	source := models.NewSource(userID, kind, ref, now)
	created, err := sources.CreateIfAbsent(ctx, source)
	if err != nil {
		return false, fmt.Errorf("failed to register %s %s: %w", kind, ref.ExternalID, err)
	}
	if created {
		return false, nil
	}

	existing, err := sources.GetByExternalID(ctx, userID, kind, ref.ExternalID)
	if err != nil {
		return false, err
	}
	if ref.Title != "" && existing.Title == "" {
		existing.Title = ref.Title
		existing.SetUpdatedAt(now)
		if err := sources.Update(ctx, existing); err != nil {
			return false, err
		}
	}
	return existing.Completed, nil
}

func dedupeRefs(refs []models.SourceRef) ([]models.SourceRef, error) {
	seen := make(map[string]bool, len(refs))
	out := make([]models.SourceRef, 0, len(refs))
	for _, ref := range refs {
		ref.ExternalID = strings.TrimSpace(ref.ExternalID)
		ref.Title = strings.TrimSpace(ref.Title)
		if ref.ExternalID == "" {
			return nil, fmt.Errorf("%w: empty source id", shared.ErrInvalidInput)
		}
		if seen[ref.ExternalID] {
			continue
		}
		seen[ref.ExternalID] = true
		out = append(out, ref)
	}
	return out, nil
}
