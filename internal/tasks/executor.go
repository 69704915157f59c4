package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/services"
	"github.com/desertthunder/ytexport/internal/shared"
)

// BatchOutcome is the result of one page of import work for one source.
type BatchOutcome struct {
	RecordsImported int  // Videos seen for the first time
	HasMore         bool // The page carried a continuation cursor
	CostConsumed    int  // Declared cost of the fetch
}

// Executor imports one page for one source.
type Executor struct {
	db       *sql.DB
	registry *Registry
	api      services.SourceAPI
	clock    shared.Clock
	logger   *log.Logger
}

// NewExecutor creates an Executor fetching from api and writing to db.
func NewExecutor(db *sql.DB, api services.SourceAPI, clock shared.Clock, logger *log.Logger) *Executor {
	if clock == nil {
		clock = shared.SystemClock
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Executor{db: db, registry: NewRegistry(db, clock), api: api, clock: clock, logger: logger}
}

// RunBatch fetches the page at the source's cursor, stores the new videos and advances the source.
//
// Remote failures come back wrapping [shared.ErrTransient], [shared.ErrFatal] or [shared.ErrRemoteQuota] and leave
// the source untouched, so the same page is fetched again on retry. The writes for one page commit together.
func (e *Executor) RunBatch(ctx context.Context, source *models.Source) (*BatchOutcome, error) {
	page, err := e.api.FetchPage(ctx, source.Kind, source.ExternalID, source.Cursor)
	if err != nil {
		return nil, classifyRemote(err)
	}

	now := e.clock()
	imported := 0
	err = repositories.InTx(ctx, e.db, func(tx *sql.Tx) error {
		videos := repositories.NewVideoRepository(tx)
		for _, item := range page.Items {
			video := models.NewVideo(source, now)
			video.VideoID = item.VideoID
			video.Title = item.Title
			video.ChannelID = item.ChannelID
			video.ChannelTitle = item.ChannelTitle
			video.Language = item.Language
			video.IsEnglish = shared.IsEnglish(item.Language)
			video.PublishedAt = item.PublishedAt
			video.ThumbnailURL = item.ThumbnailURL

			created, err := videos.InsertIfAbsent(ctx, video)
			if err != nil {
				return err
			}
			if _, err := videos.AddOrigin(ctx, source.UserID, item.VideoID, source.ID(), now); err != nil {
				return err
			}
			if created {
				imported++
			}
		}

		return e.registry.WithTx(tx).Advance(ctx, source.ID(), page.NextCursor, imported)
	})
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: page for %s %s not stored before deadline: %w", shared.ErrTransient, source.Kind, source.ExternalID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist page for %s %s: %w", source.Kind, source.ExternalID, err)
	}

	e.logger.Debug("batch stored",
		"user", source.UserID,
		"source", source.ExternalID,
		"items", len(page.Items),
		"imported", imported,
		"more", page.NextCursor != nil,
	)

	return &BatchOutcome{
		RecordsImported: imported,
		HasMore:         page.NextCursor != nil,
		CostConsumed:    e.api.CallCost(source.Kind),
	}, nil
}

// classifyRemote treats any remote failure the collaborator did not classify as transient.
func classifyRemote(err error) error {
	if errors.Is(err, shared.ErrTransient) || errors.Is(err, shared.ErrFatal) || errors.Is(err, shared.ErrRemoteQuota) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrTransient, err)
}
