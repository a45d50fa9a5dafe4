package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

const phaseFavoriteLookup = "favorite_lookup"

// Cleanup permanently deletes archived listings whose stored ttl has elapsed,
// together with every favorite referencing them.
//
// The run is two-phase. Favorites for all eligible listings are resolved first
// with bounded concurrency; a listing whose lookup fails is skipped and stays
// eligible for the next run. Then listing and favorite deletes are streamed
// through one BatchWriter. A failed commit aborts the rest of the run; earlier
// commits stand and the returned summary reflects them.
func (s *lifecycleService) Cleanup(ctx context.Context, opts RunOptions) (*models.CleanupSummary, error) {
	now, err := s.begin(ctx, opts.Principal)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.FindExpiredArchived(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired archived listings: %w", err)
	}

	summary := &models.CleanupSummary{
		RunID:      uuid.NewString(),
		Candidates: len(candidates),
		DryRun:     opts.DryRun,
		Timestamp:  now,
	}

	eligible := make([]models.Listing, 0, len(candidates))
	for _, l := range candidates {
		if isPurgeable(&l, now) {
			eligible = append(eligible, l)
		}
	}

	favorites, lookupErrs := s.resolveFavorites(ctx, eligible)

	ops := make([]models.Operation, 0, len(eligible))
	plannedListings, plannedFavorites := 0, 0
	for i := range eligible {
		l := &eligible[i]
		if lookupErrs[i] != nil {
			var entityErr *EntityError
			errors.As(lookupErrs[i], &entityErr)
			s.log.Warn("skipping listing for this cleanup run",
				zap.String("run_id", summary.RunID),
				zap.String("listing_id", l.ID),
				zap.String("phase", phaseFavoriteLookup),
				zap.Error(lookupErrs[i]))
			summary.Skipped = append(summary.Skipped, models.SkippedListing{
				ListingID: l.ID,
				Phase:     phaseFavoriteLookup,
				Error:     entityErr.Err.Error(),
			})
			continue
		}
		ops = append(ops, models.DeleteListingOp(l))
		plannedListings++
		for j := range favorites[i] {
			ops = append(ops, models.DeleteFavoriteOp(&favorites[i][j]))
			plannedFavorites++
		}
	}

	if opts.DryRun {
		summary.TotalDeleted = plannedListings
		summary.TotalFavoritesRemoved = plannedFavorites
		return summary, nil
	}

	w := s.newWriter(WithOnCommit(func(ctx context.Context, batch []models.Operation) {
		summary.ImagesRemoved += s.purgeImages(ctx, summary.RunID, batch)
	}))
	runErr := apply(ctx, w, ops)
	stats := w.Stats()
	summary.TotalDeleted = stats.Committed[models.OpDeleteListing]
	summary.TotalFavoritesRemoved = stats.Committed[models.OpDeleteFavorite]
	summary.CompletedBatches = stats.Commits

	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("principal", string(opts.Principal)),
		zap.Int("candidates", summary.Candidates),
		zap.Int("deleted", summary.TotalDeleted),
		zap.Int("favorites_removed", summary.TotalFavoritesRemoved),
		zap.Int("images_removed", summary.ImagesRemoved),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("batches", summary.CompletedBatches),
	}
	if runErr != nil {
		s.log.Error("cleanup run aborted, committed batches stand", append(fields, zap.Error(runErr))...)
	} else {
		s.log.Info("cleanup run finished", fields...)
	}
	s.record(ctx, models.JobCleanup, opts.Principal, summary, runErr)
	return summary, runErr
}

// isPurgeable re-checks the selection predicate against the stored ttl.
func isPurgeable(l *models.Listing, now time.Time) bool {
	return l.Status == models.ListingStatusArchived && l.TTL != nil && l.TTL.Before(now)
}

// resolveFavorites looks up the favorites of every listing with at most
// s.concurrency reads in flight. Result and error slices are indexed like listings.
func (s *lifecycleService) resolveFavorites(ctx context.Context, listings []models.Listing) ([][]models.Favorite, []error) {
	favorites := make([][]models.Favorite, len(listings))
	errs := make([]error, len(listings))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range listings {
		i := i
		g.Go(func() error {
			favs, err := s.store.FindFavoritesByListing(ctx, listings[i].ID)
			if err != nil {
				errs[i] = &EntityError{ListingID: listings[i].ID, Phase: phaseFavoriteLookup, Err: err}
				return nil
			}
			favorites[i] = favs
			return nil
		})
	}
	_ = g.Wait()
	return favorites, errs
}

// purgeImages deletes the image objects of listings deleted in a committed batch.
func (s *lifecycleService) purgeImages(ctx context.Context, runID string, batch []models.Operation) int {
	var keys []string
	for _, op := range batch {
		if op.Kind == models.OpDeleteListing {
			keys = append(keys, op.Images...)
		}
	}
	if len(keys) == 0 {
		return 0
	}
	removed, err := s.images.DeleteImages(ctx, keys)
	if err != nil {
		s.log.Warn("failed to purge listing images",
			zap.String("run_id", runID),
			zap.Int("keys", len(keys)),
			zap.Int("removed", removed),
			zap.Error(err))
	}
	return removed
}
