package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// SweepFavorites deletes favorites whose listing no longer exists, at most
// sweepLimit per run. It catches references left behind by cleanup runs that
// skipped a listing's favorites or stopped on a failed commit.
func (s *lifecycleService) SweepFavorites(ctx context.Context, opts RunOptions) (*models.SweepSummary, error) {
	now, err := s.begin(ctx, opts.Principal)
	if err != nil {
		return nil, err
	}

	orphans, err := s.store.FindOrphanedFavorites(ctx, s.sweepLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned favorites: %w", err)
	}

	summary := &models.SweepSummary{
		RunID:        uuid.NewString(),
		OrphansFound: len(orphans),
		DryRun:       opts.DryRun,
		Timestamp:    now,
	}
	if opts.DryRun {
		summary.TotalFavoritesRemoved = len(orphans)
		return summary, nil
	}

	ops := make([]models.Operation, 0, len(orphans))
	for i := range orphans {
		ops = append(ops, models.DeleteFavoriteOp(&orphans[i]))
	}

	w := s.newWriter()
	runErr := apply(ctx, w, ops)
	stats := w.Stats()
	summary.TotalFavoritesRemoved = stats.Committed[models.OpDeleteFavorite]
	summary.CompletedBatches = stats.Commits

	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("principal", string(opts.Principal)),
		zap.Int("orphans", summary.OrphansFound),
		zap.Int("removed", summary.TotalFavoritesRemoved),
		zap.Int("batches", summary.CompletedBatches),
	}
	if runErr != nil {
		s.log.Error("favorite sweep aborted", append(fields, zap.Error(runErr))...)
	} else {
		s.log.Info("favorite sweep finished", fields...)
	}
	s.record(ctx, models.JobSweepFavorites, opts.Principal, summary, runErr)
	return summary, runErr
}
