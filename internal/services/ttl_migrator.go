package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// MigrateTTL assigns a ttl to every archived listing that lacks one. Safe to
// re-run: a listing that already has a ttl is never touched, and the store
// applies the write only while ttl is still absent.
func (s *lifecycleService) MigrateTTL(ctx context.Context, opts RunOptions) (*models.MigrationSummary, error) {
	now, err := s.begin(ctx, opts.Principal)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.FindArchivedWithoutTTL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived listings without ttl: %w", err)
	}

	summary := &models.MigrationSummary{
		RunID:      uuid.NewString(),
		Candidates: len(candidates),
		DryRun:     opts.DryRun,
		Timestamp:  now,
	}

	ops := make([]models.Operation, 0, len(candidates))
	plannedImmediate := 0
	for i := range candidates {
		l := &candidates[i]
		if l.TTL != nil {
			summary.AlreadySet++
			continue
		}
		if l.Status != models.ListingStatusArchived {
			continue
		}
		ops = append(ops, models.Operation{
			Kind:      models.OpAssignTTL,
			ListingID: l.ID,
			Patch:     s.migrationPatch(l, now),
		})
		if ops[len(ops)-1].Patch.Reason == models.TTLReasonMigrationImmediateExpiry {
			plannedImmediate++
		}
	}

	if opts.DryRun {
		summary.TotalMigrated = len(ops)
		summary.ImmediatelyExpired = plannedImmediate
		return summary, nil
	}

	w := s.newWriter(WithOnCommit(func(_ context.Context, batch []models.Operation) {
		for _, op := range batch {
			if op.Patch != nil && op.Patch.Reason == models.TTLReasonMigrationImmediateExpiry {
				summary.ImmediatelyExpired++
			}
		}
	}))
	runErr := apply(ctx, w, ops)
	stats := w.Stats()
	summary.TotalMigrated = stats.Committed[models.OpAssignTTL]
	summary.CompletedBatches = stats.Commits

	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("principal", string(opts.Principal)),
		zap.Int("candidates", summary.Candidates),
		zap.Int("migrated", summary.TotalMigrated),
		zap.Int("immediately_expired", summary.ImmediatelyExpired),
		zap.Int("already_set", summary.AlreadySet),
		zap.Int("batches", summary.CompletedBatches),
	}
	if runErr != nil {
		s.log.Error("ttl migration aborted", append(fields, zap.Error(runErr))...)
	} else {
		s.log.Info("ttl migration finished", fields...)
	}
	s.record(ctx, models.JobMigrateTTL, opts.Principal, summary, runErr)
	return summary, runErr
}

// migrationPatch picks the ttl for a legacy archived listing. A missing
// archivedAt is backfilled with now.
func (s *lifecycleService) migrationPatch(l *models.Listing, now time.Time) *models.TTLPatch {
	patch := &models.TTLPatch{TTLSetAt: now}
	if s.policy.IsImmediatelyExpired(l, now) {
		patch.TTL = now.Add(s.policy.GracePeriod)
		patch.Reason = models.TTLReasonMigrationImmediateExpiry
	} else {
		archivedAt := now
		if l.ArchivedAt != nil {
			archivedAt = *l.ArchivedAt
		}
		patch.TTL = s.policy.ComputeTTL(l, archivedAt, now)
		patch.Reason = models.TTLReasonMigrationNormal
	}
	if l.ArchivedAt == nil {
		backfill := now
		patch.ArchivedAt = &backfill
	}
	return patch
}
