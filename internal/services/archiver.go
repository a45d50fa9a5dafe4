package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// Archive moves every active listing whose active window has elapsed to
// archived and assigns its ttl in the same write.
func (s *lifecycleService) Archive(ctx context.Context, opts RunOptions) (*models.ArchiveSummary, error) {
	now, err := s.begin(ctx, opts.Principal)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.FindExpiredActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired active listings: %w", err)
	}

	summary := &models.ArchiveSummary{
		RunID:      uuid.NewString(),
		Candidates: len(candidates),
		DryRun:     opts.DryRun,
		Timestamp:  now,
	}

	ops := make([]models.Operation, 0, len(candidates))
	for i := range candidates {
		l := &candidates[i]
		// The query should only return these; a concurrent run may have got there first.
		if l.Status != models.ListingStatusActive || l.ExpiresAt == nil || l.ExpiresAt.After(now) {
			continue
		}
		if s.policy.IsImmediatelyExpired(l, now) {
			summary.ImmediatelyExpired++
		}
		archivedAt := now
		patch := &models.TTLPatch{
			ArchivedAt: &archivedAt,
			TTL:        s.policy.ComputeTTL(l, archivedAt, now),
			TTLSetAt:   now,
			Reason:     models.TTLReasonArchiverAssigned,
		}
		keepLaterTTL(patch, l)
		ops = append(ops, models.Operation{
			Kind:      models.OpArchiveListing,
			ListingID: l.ID,
			Patch:     patch,
		})
	}

	if opts.DryRun {
		summary.TotalArchived = len(ops)
		return summary, nil
	}

	w := s.newWriter()
	runErr := apply(ctx, w, ops)
	stats := w.Stats()
	summary.TotalArchived = stats.Committed[models.OpArchiveListing]
	summary.CompletedBatches = stats.Commits

	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("principal", string(opts.Principal)),
		zap.Int("candidates", summary.Candidates),
		zap.Int("archived", summary.TotalArchived),
		zap.Int("immediately_expired", summary.ImmediatelyExpired),
		zap.Int("batches", summary.CompletedBatches),
	}
	if runErr != nil {
		s.log.Error("archive run aborted", append(fields, zap.Error(runErr))...)
	} else {
		s.log.Info("archive run finished", fields...)
	}
	s.record(ctx, models.JobArchive, opts.Principal, summary, runErr)
	return summary, runErr
}

// keepLaterTTL stops the archiver from shortening a ttl already stored on the
// listing. The stored ttl wins together with its provenance.
func keepLaterTTL(p *models.TTLPatch, l *models.Listing) {
	if l.TTL == nil || !l.TTL.After(p.TTL) {
		return
	}
	p.TTL = *l.TTL
	if l.TTLSetAt != nil {
		p.TTLSetAt = *l.TTLSetAt
	}
	if l.TTLReason.Valid() {
		p.Reason = l.TTLReason
	}
}
