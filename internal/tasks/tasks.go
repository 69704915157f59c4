// package tasks implements the export pipeline: source registry, batch executor and the orchestrator that runs
// one bounded batch at a time against the daily quota.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/quota"
	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/services"
	"github.com/desertthunder/ytexport/internal/shared"
)

// StopReason says why a batch result asks the caller to stop.
type StopReason string

const (
	StopNone      StopReason = ""
	StopQuota     StopReason = "quota_exhausted"
	StopComplete  StopReason = "export_complete"
	StopLeaseHeld StopReason = "lease_held" // another batch holds the user's lease; nothing ran
)

// BatchResult is the snapshot returned by every batch run.
type BatchResult struct {
	SourceID       string            `json:"sourceId,omitempty"`
	SourceTitle    string            `json:"sourceTitle,omitempty"`
	SourceType     models.SourceKind `json:"sourceType,omitempty"`
	VideosImported int               `json:"videosImported"`
	HasMore        bool              `json:"hasMore"`
	QuotaUsedToday int               `json:"quotaUsedToday"`
	QuotaCeiling   int               `json:"quotaCeiling"`
	ShouldStop     bool              `json:"shouldStop"`
	ExportComplete bool              `json:"exportComplete"`
	StopReason     StopReason        `json:"stopReason,omitempty"`
}

// LeaseHeld reports whether the batch was skipped because another batch was running for the user.
func (r *BatchResult) LeaseHeld() bool {
	return r.ShouldStop && r.StopReason == StopLeaseHeld
}

// QuotaExhausted reports whether the batch stopped for lack of quota rather than completion.
func (r *BatchResult) QuotaExhausted() bool {
	return r.ShouldStop && r.StopReason == StopQuota
}

// ExportStatus is a read-only snapshot of a user's export.
type ExportStatus struct {
	TotalSources        int        `json:"totalSources"`
	CompletedSources    int        `json:"completedSources"`
	InProgressSources   int        `json:"inProgressSources"`
	PendingSources      int        `json:"pendingSources"`
	TotalVideosImported int        `json:"totalVideosImported"`
	EnglishVideosCount  int        `json:"englishVideosCount"`
	QuotaUsedToday      int        `json:"quotaUsedToday"`
	QuotaCeiling        int        `json:"quotaCeiling"`
	QuotaResetsAt       time.Time  `json:"quotaResetsAt"`
	LastImportedAt      *time.Time `json:"lastImportedAt"`
	HasIncompleteWork   bool       `json:"hasIncompleteWork"`
}

// DrainResult aggregates the batches run by [ExportEngine.Drain].
type DrainResult struct {
	Batches        int          `json:"batches"`
	VideosImported int          `json:"videosImported"`
	Last           *BatchResult `json:"last,omitempty"`
}

// BatchRunner runs one unguarded batch. The auto-resume controller holds the user's lease around it.
type BatchRunner interface {
	RunOneBatch(ctx context.Context, userID string) (*BatchResult, error)
}

// Exporter is the export surface exposed to the CLI, HTTP API and dashboard.
type Exporter interface {
	BatchRunner

	// InitExport registers the selected playlists and channels.
	InitExport(ctx context.Context, userID string, playlists, channels []models.SourceRef) (*ExportInitResult, error)

	// RunExportBatch runs one batch while holding the user's lease. If another batch holds it nothing runs and the
	// result is marked with [StopLeaseHeld].
	RunExportBatch(ctx context.Context, userID string) (*BatchResult, error)

	// Drain runs batches until a result says stop, limit batches ran, or ctx is done.
	Drain(ctx context.Context, progress chan<- ProgressUpdate, userID string, limit int) (*DrainResult, error)

	// Status aggregates sources, videos and quota into one snapshot.
	Status(ctx context.Context, userID string) (*ExportStatus, error)
}

var _ Exporter = (*ExportEngine)(nil)

// Deps are the collaborators of an [ExportEngine].
type Deps struct {
	DB     *sql.DB
	API    services.SourceAPI
	Quota  *quota.Tracker
	Locker *Locker
	Clock  shared.Clock
	Logger *log.Logger
}

// ExportEngine implements [Exporter].
type ExportEngine struct {
	registry *Registry
	executor *Executor
	quota    *quota.Tracker
	api      services.SourceAPI
	sources  *repositories.SourceRepository
	videos   *repositories.VideoRepository
	locker   *Locker
	clock    shared.Clock
	logger   *log.Logger
}

// NewExportEngine wires an engine from its dependencies.
func NewExportEngine(d Deps) *ExportEngine {
	if d.Clock == nil {
		d.Clock = shared.SystemClock
	}
	if d.Logger == nil {
		d.Logger = shared.NewLogger(nil)
	}
	logger := shared.WithLogger(d.Logger, "component", "export")

	return &ExportEngine{
		registry: NewRegistry(d.DB, d.Clock),
		executor: NewExecutor(d.DB, d.API, d.Clock, logger),
		quota:    d.Quota,
		api:      d.API,
		sources:  repositories.NewSourceRepository(d.DB),
		videos:   repositories.NewVideoRepository(d.DB),
		locker:   d.Locker,
		clock:    d.Clock,
		logger:   logger,
	}
}

// InitExport registers the selected playlists and channels for the user.
func (e *ExportEngine) InitExport(ctx context.Context, userID string, playlists, channels []models.SourceRef) (*ExportInitResult, error) {
	result, err := e.registry.Initialize(ctx, userID, playlists, channels)
	if err != nil {
		return nil, err
	}
	e.logger.Info("export initialized",
		"user", userID,
		"playlists", result.PlaylistSources,
		"channels", result.ChannelSources,
		"already_completed", result.AlreadyCompleted,
	)
	return result, nil
}

// RunOneBatch performs at most one page fetch for the user's first incomplete source.
//
// Quota exhaustion is not an error: it comes back as ShouldStop with [StopQuota]. Remote failures are returned
// wrapping [shared.ErrTransient] or [shared.ErrFatal]; anything else is a persistence failure.
func (e *ExportEngine) RunOneBatch(ctx context.Context, userID string) (*BatchResult, error) {
	now := e.clock()
	day := e.quota.Day(now)
	ceiling := e.quota.Ceiling()
	result := &BatchResult{QuotaCeiling: ceiling}

	remaining, err := e.quota.Remaining(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	result.QuotaUsedToday = ceiling - remaining

	incomplete, err := e.registry.ListIncomplete(ctx, userID)
	if err != nil {
		return nil, err
	}

	if remaining < services.MinCallCost(e.api) {
		result.ShouldStop = true
		result.StopReason = StopQuota
		if len(incomplete) == 0 {
			result.ExportComplete = true
			result.StopReason = StopComplete
		}
		return result, nil
	}

	if len(incomplete) == 0 {
		result.ExportComplete = true
		result.ShouldStop = true
		result.StopReason = StopComplete
		return result, nil
	}

	source := incomplete[0]
	result.SourceID = source.ExternalID
	result.SourceTitle = source.DisplayTitle()
	result.SourceType = source.Kind

	cost := e.api.CallCost(source.Kind)
	consumed, err := e.quota.TryConsume(ctx, userID, day, cost)
	if err != nil {
		return nil, err
	}
	result.QuotaUsedToday = ceiling - consumed.RemainingAfter
	if !consumed.Accepted {
		result.ShouldStop = true
		result.StopReason = StopQuota
		e.logger.Info("quota reservation rejected", "user", userID, "cost", cost, "used", result.QuotaUsedToday)
		return result, nil
	}

	outcome, err := e.executor.RunBatch(ctx, source)
	if errors.Is(err, shared.ErrRemoteQuota) {
		if err := e.quota.Exhaust(ctx, userID, day); err != nil {
			return nil, err
		}
		e.logger.Warn("remote quota exhausted", "user", userID, "source", source.ExternalID, "error", err)
		result.QuotaUsedToday = ceiling
		result.ShouldStop = true
		result.StopReason = StopQuota
		result.HasMore = true
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.VideosImported = outcome.RecordsImported
	result.HasMore = outcome.HasMore

	left, err := e.registry.ListIncomplete(ctx, userID)
	if err != nil {
		return nil, err
	}
	result.ExportComplete = len(left) == 0

	switch {
	case result.ExportComplete:
		result.ShouldStop = true
		result.StopReason = StopComplete
	case consumed.RemainingAfter < e.api.CallCost(left[0].Kind):
		result.ShouldStop = true
		result.StopReason = StopQuota
	}

	e.logger.Info("batch complete",
		"user", userID,
		"source", source.ExternalID,
		"imported", result.VideosImported,
		"more", result.HasMore,
		"quota_used", result.QuotaUsedToday,
		"stop", result.StopReason,
	)
	return result, nil
}

// RunExportBatch runs one batch while holding the user's lease.
func (e *ExportEngine) RunExportBatch(ctx context.Context, userID string) (*BatchResult, error) {
	if e.locker == nil {
		return e.RunOneBatch(ctx, userID)
	}

	leaseCtx, release, ok, err := e.locker.TryLock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		used, err := e.quota.Used(ctx, userID, e.quota.Today())
		if err != nil {
			return nil, err
		}
		e.logger.Info("batch skipped, lease held", "user", userID)
		return &BatchResult{
			QuotaUsedToday: min(used, e.quota.Ceiling()),
			QuotaCeiling:   e.quota.Ceiling(),
			ShouldStop:     true,
			StopReason:     StopLeaseHeld,
		}, nil
	}
	defer release()

	return e.RunOneBatch(leaseCtx, userID)
}

// Drain runs batches until one says stop, limit batches ran (limit <= 0 means no limit) or ctx is done.
//
// Progress updates are sent without blocking; a nil channel is allowed.
func (e *ExportEngine) Drain(ctx context.Context, progress chan<- ProgressUpdate, userID string, limit int) (*DrainResult, error) {
	result := &DrainResult{}

	for limit <= 0 || result.Batches < limit {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		e.sendProgress(progress, runBatchUpdate(result.Batches+1, limit))
		batch, err := e.RunExportBatch(ctx, userID)
		if err != nil {
			e.sendProgress(progress, batchFailedUpdate(result.Batches+1, limit, err))
			return result, err
		}
		if batch.LeaseHeld() {
			result.Last = batch
			e.sendProgress(progress, leaseHeldUpdate(result.Batches+1, limit))
			return result, nil
		}

		result.Batches++
		result.VideosImported += batch.VideosImported
		result.Last = batch
		e.sendProgress(progress, batchDoneUpdate(result.Batches, limit, batch))

		if batch.ShouldStop {
			switch batch.StopReason {
			case StopComplete:
				e.sendProgress(progress, exportCompleteUpdate(result.Batches, limit, result.VideosImported))
			case StopQuota:
				e.sendProgress(progress, quotaExhaustedUpdate(result.Batches, limit, e.quota.NextReset(e.clock())))
			}
			return result, nil
		}
	}
	return result, nil
}

// Status aggregates the user's sources, videos and quota into one snapshot.
func (e *ExportEngine) Status(ctx context.Context, userID string) (*ExportStatus, error) {
	counts, err := e.sources.Counts(ctx, userID)
	if err != nil {
		return nil, err
	}

	total, english, err := e.videos.Counts(ctx, userID)
	if err != nil {
		return nil, err
	}

	last, err := e.videos.LastImportedAt(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	used, err := e.quota.Used(ctx, userID, e.quota.Day(now))
	if err != nil {
		return nil, err
	}

	return &ExportStatus{
		TotalSources:        counts.Total,
		CompletedSources:    counts.Completed,
		InProgressSources:   counts.InProgress,
		PendingSources:      counts.Pending,
		TotalVideosImported: total,
		EnglishVideosCount:  english,
		QuotaUsedToday:      min(used, e.quota.Ceiling()),
		QuotaCeiling:        e.quota.Ceiling(),
		QuotaResetsAt:       e.quota.NextReset(now),
		LastImportedAt:      last,
		HasIncompleteWork:   counts.Completed < counts.Total,
	}, nil
}

// sendProgress sends a progress update through the channel without blocking.
func (e *ExportEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
