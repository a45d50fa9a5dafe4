package services

import (
	"context"
	"time"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// IListingStore is the read side of the listing collection used by the lifecycle jobs.
type IListingStore interface {
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	// FindExpiredActive returns active listings with expiresAt <= now.
	FindExpiredActive(ctx context.Context, now time.Time) ([]models.Listing, error)
	// FindArchivedWithoutTTL returns archived listings that have no ttl field.
	FindArchivedWithoutTTL(ctx context.Context) ([]models.Listing, error)
	// FindExpiredArchived returns archived listings with ttl < now.
	FindExpiredArchived(ctx context.Context, now time.Time) ([]models.Listing, error)
	// FindAllListings returns every listing.
	FindAllListings(ctx context.Context) ([]models.Listing, error)
	// FindPublicListings runs the public "active listings" query. limit <= 0 means no limit.
	FindPublicListings(ctx context.Context, limit int) ([]models.Listing, error)
}

// IFavoriteStore is the read side of the favorites collection.
type IFavoriteStore interface {
	// FindFavoritesByListing returns every favorite referencing listingID, across all users.
	FindFavoritesByListing(ctx context.Context, listingID string) ([]models.Favorite, error)
	// FindOrphanedFavorites returns up to limit favorites whose listing does not exist.
	FindOrphanedFavorites(ctx context.Context, limit int) ([]models.Favorite, error)
}

// ICommitter applies a group of operations as one atomic commit.
type ICommitter interface {
	Commit(ctx context.Context, ops []models.Operation) error
}

// ILifecycleStore is everything the lifecycle jobs need from persistence.
type ILifecycleStore interface {
	IListingStore
	IFavoriteStore
	ICommitter
}

// IImageRemover deletes listing image objects. Deleting a missing key is not an error.
type IImageRemover interface {
	DeleteImages(ctx context.Context, keys []string) (int, error)
}

// IRunRecorder keeps the latest summary of each job.
type IRunRecorder interface {
	Record(ctx context.Context, rec models.RunRecord) error
	LastRuns(ctx context.Context) ([]models.RunRecord, error)
}

type noopImageRemover struct{}

func (noopImageRemover) DeleteImages(ctx context.Context, keys []string) (int, error) { return 0, nil }
