package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/config"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// RunOptions describe one invocation of a lifecycle job.
type RunOptions struct {
	Principal auth.Principal
	DryRun    bool
}

// ILifecycleService defines the listing lifecycle jobs and their read-only companions.
type ILifecycleService interface {
	Archive(ctx context.Context, opts RunOptions) (*models.ArchiveSummary, error)
	MigrateTTL(ctx context.Context, opts RunOptions) (*models.MigrationSummary, error)
	// Cleanup returns a partial summary together with a *BatchCommitError when a commit fails.
	Cleanup(ctx context.Context, opts RunOptions) (*models.CleanupSummary, error)
	SweepFavorites(ctx context.Context, opts RunOptions) (*models.SweepSummary, error)
	Diagnose(ctx context.Context, principal auth.Principal) (*models.DiagnosticReport, error)
	LastRuns(ctx context.Context, principal auth.Principal) ([]models.RunRecord, error)
	PublicListings(ctx context.Context, limit int) ([]models.Listing, error)
}

// LifecycleDeps are the collaborators of the lifecycle service. Images and
// Recorder may be nil.
type LifecycleDeps struct {
	Store    ILifecycleStore
	Images   IImageRemover
	Recorder IRunRecorder
	Logger   *zap.Logger
	Clock    func() time.Time
}

// lifecycleService implements ILifecycleService.
type lifecycleService struct {
	store    ILifecycleStore
	images   IImageRemover
	recorder IRunRecorder
	log      *zap.Logger
	clock    func() time.Time

	policy              Policy
	ceiling             int
	concurrency         int
	tolerance           time.Duration
	commitRatePerSecond float64
	sweepLimit          int
}

// NewLifecycleService creates a new lifecycle service.
func NewLifecycleService(cfg *config.Config, deps LifecycleDeps) ILifecycleService {
	s := &lifecycleService{
		store:               deps.Store,
		images:              deps.Images,
		recorder:            deps.Recorder,
		log:                 deps.Logger,
		clock:               deps.Clock,
		policy:              NewPolicy(cfg),
		ceiling:             cfg.BatchCeiling,
		concurrency:         cfg.FavoriteLookupConcurrency,
		tolerance:           cfg.ExpirationTolerance,
		commitRatePerSecond: cfg.CommitRatePerSecond,
		sweepLimit:          cfg.FavoriteSweepLimit,
	}
	if s.images == nil {
		s.images = noopImageRemover{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// begin authorizes the run, checks the store and takes the single clock reading
// the whole run compares against.
func (s *lifecycleService) begin(ctx context.Context, principal auth.Principal) (time.Time, error) {
	if !principal.Trusted() {
		return time.Time{}, ErrUnauthorized
	}
	if err := s.store.Ping(ctx); err != nil {
		return time.Time{}, &StoreUnavailableError{Err: err}
	}
	return s.clock().UTC(), nil
}

func (s *lifecycleService) newWriter(opts ...BatchOption) *BatchWriter {
	if s.commitRatePerSecond > 0 {
		opts = append(opts, WithCommitLimiter(rate.NewLimiter(rate.Limit(s.commitRatePerSecond), 1)))
	}
	return NewBatchWriter(s.store, s.ceiling, opts...)
}

// apply streams a planned operation list through w and flushes the remainder.
func apply(ctx context.Context, w *BatchWriter, ops []models.Operation) error {
	for _, op := range ops {
		if err := w.Add(ctx, op); err != nil {
			return err
		}
	}
	return w.Flush(ctx)
}

// record stores the run outcome. Failures are logged and never fail the run.
func (s *lifecycleService) record(ctx context.Context, job string, principal auth.Principal, summary interface{}, runErr error) {
	if s.recorder == nil {
		return
	}
	rec := models.RunRecord{
		Job:        job,
		Principal:  string(principal),
		Summary:    summary,
		RecordedAt: s.clock().UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.log.Warn("failed to record run summary", zap.String("job", job), zap.Error(err))
	}
}

// LastRuns returns the latest recorded run of every job.
func (s *lifecycleService) LastRuns(ctx context.Context, principal auth.Principal) ([]models.RunRecord, error) {
	if !principal.Trusted() {
		return nil, ErrUnauthorized
	}
	if s.recorder == nil {
		return []models.RunRecord{}, nil
	}
	return s.recorder.LastRuns(ctx)
}

// PublicListings runs the public active-listings query.
func (s *lifecycleService) PublicListings(ctx context.Context, limit int) ([]models.Listing, error) {
	return s.store.FindPublicListings(ctx, limit)
}
