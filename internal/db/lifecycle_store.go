package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// LifecycleStore is the MongoDB implementation of the lifecycle engine's persistence.
type LifecycleStore struct {
	db              *mongo.Database
	listings        *mongo.Collection
	favorites       *mongo.Collection
	useTransactions bool
}

// NewLifecycleStore creates a store over the listings and favorites collections of db.
// With useTransactions each commit runs in a multi-document transaction, which
// needs a replica set.
func NewLifecycleStore(db *mongo.Database, useTransactions bool) *LifecycleStore {
	return &LifecycleStore{
		db:              db,
		listings:        db.Collection(ListingsCollection),
		favorites:       db.Collection(FavoritesCollection),
		useTransactions: useTransactions,
	}
}

func (s *LifecycleStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *LifecycleStore) FindExpiredActive(ctx context.Context, now time.Time) ([]models.Listing, error) {
	filter := bson.M{
		"status":     models.ListingStatusActive,
		"expires_at": bson.M{"$lte": now},
	}
	return s.findListings(ctx, filter, nil)
}

func (s *LifecycleStore) FindArchivedWithoutTTL(ctx context.Context) ([]models.Listing, error) {
	// ttl: nil matches both a missing field and an explicit null.
	filter := bson.M{
		"status": models.ListingStatusArchived,
		"ttl":    nil,
	}
	return s.findListings(ctx, filter, nil)
}

func (s *LifecycleStore) FindExpiredArchived(ctx context.Context, now time.Time) ([]models.Listing, error) {
	filter := bson.M{
		"status": models.ListingStatusArchived,
		"ttl":    bson.M{"$lt": now},
	}
	return s.findListings(ctx, filter, nil)
}

func (s *LifecycleStore) FindAllListings(ctx context.Context) ([]models.Listing, error) {
	return s.findListings(ctx, bson.M{}, nil)
}

// FindPublicListings is the query behind the public "active listings" view.
func (s *LifecycleStore) FindPublicListings(ctx context.Context, limit int) ([]models.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findListings(ctx, bson.M{"status": models.ListingStatusActive}, opts)
}

func (s *LifecycleStore) findListings(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Listing, error) {
	var listings []models.Listing
	err := Try(func() error {
		cursor, err := s.listings.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		listings = []models.Listing{}
		return cursor.All(ctx, &listings)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find listings: %w", err)
	}
	return listings, nil
}

func (s *LifecycleStore) FindFavoritesByListing(ctx context.Context, listingID string) ([]models.Favorite, error) {
	var favorites []models.Favorite
	err := Try(func() error {
		cursor, err := s.favorites.Find(ctx, bson.M{"listing_id": listingID})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		favorites = []models.Favorite{}
		return cursor.All(ctx, &favorites)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find favorites of listing %s: %w", listingID, err)
	}
	return favorites, nil
}

// FindOrphanedFavorites joins favorites against listings and keeps those with no match.
func (s *LifecycleStore) FindOrphanedFavorites(ctx context.Context, limit int) ([]models.Favorite, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         ListingsCollection,
			"localField":   "listing_id",
			"foreignField": "_id",
			"as":           "listing",
		}}},
		{{Key: "$match", Value: bson.M{"listing": bson.M{"$size": 0}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.M{"listing": 0}}})

	cursor, err := s.favorites.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate orphaned favorites: %w", err)
	}
	defer cursor.Close(ctx)

	favorites := []models.Favorite{}
	if err := cursor.All(ctx, &favorites); err != nil {
		return nil, fmt.Errorf("failed to decode orphaned favorites: %w", err)
	}
	return favorites, nil
}

// Commit applies ops. Listing writes carry their guards in the filter, so an
// operation whose precondition no longer holds matches nothing and is a no-op.
// Without transactions a failure after some writes landed is reported as a
// *models.PartialCommitError naming the operations already applied.
func (s *LifecycleStore) Commit(ctx context.Context, ops []models.Operation) error {
	listingWrites, favoriteWrites, err := writeModels(ops)
	if err != nil {
		return err
	}

	if !s.useTransactions {
		listingsDone, favoritesDone, err := s.bulkWrite(ctx, listingWrites, favoriteWrites)
		if err != nil && listingsDone+favoritesDone > 0 {
			return &models.PartialCommitError{Applied: appliedOps(ops, listingsDone, favoritesDone), Err: err}
		}
		return err
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		_, _, err := s.bulkWrite(sc, listingWrites, favoriteWrites)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// bulkWrite runs the listing writes then the favorite writes, both ordered,
// and reports how many of each are known to have been applied.
func (s *LifecycleStore) bulkWrite(ctx context.Context, listingWrites, favoriteWrites []mongo.WriteModel) (int, int, error) {
	opts := options.BulkWrite().SetOrdered(true)
	if len(listingWrites) > 0 {
		if _, err := s.listings.BulkWrite(ctx, listingWrites, opts); err != nil {
			return appliedBefore(err), 0, fmt.Errorf("listing bulk write failed: %w", err)
		}
	}
	if len(favoriteWrites) > 0 {
		if _, err := s.favorites.BulkWrite(ctx, favoriteWrites, opts); err != nil {
			return len(listingWrites), appliedBefore(err), fmt.Errorf("favorite bulk write failed: %w", err)
		}
	}
	return len(listingWrites), len(favoriteWrites), nil
}

// appliedBefore returns the number of writes an ordered bulk write applied
// before failing. Anything other than a plain write error counts as none.
func appliedBefore(err error) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return 0
	}
	return bwe.WriteErrors[0].Index
}

// appliedOps picks the first listings listing ops and the first favorites
// favorite ops, keeping the order of ops.
func appliedOps(ops []models.Operation, listings, favorites int) []models.Operation {
	var out []models.Operation
	for _, op := range ops {
		if op.Kind == models.OpDeleteFavorite {
			if favorites > 0 {
				out = append(out, op)
				favorites--
			}
			continue
		}
		if listings > 0 {
			out = append(out, op)
			listings--
		}
	}
	return out
}

func writeModels(ops []models.Operation) (listingWrites, favoriteWrites []mongo.WriteModel, err error) {
	for _, op := range ops {
		switch op.Kind {
		case models.OpArchiveListing:
			if op.Patch == nil {
				return nil, nil, fmt.Errorf("archive of %s has no patch", op.ListingID)
			}
			// $max keeps a later ttl already on the document.
			set := ttlFields(op.Patch)
			delete(set, "ttl")
			set["status"] = models.ListingStatusArchived
			listingWrites = append(listingWrites, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": op.ListingID, "status": models.ListingStatusActive}).
				SetUpdate(bson.M{"$set": set, "$max": bson.M{"ttl": op.Patch.TTL}}))
		case models.OpAssignTTL:
			if op.Patch == nil {
				return nil, nil, fmt.Errorf("ttl assignment of %s has no patch", op.ListingID)
			}
			listingWrites = append(listingWrites, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": op.ListingID, "status": models.ListingStatusArchived, "ttl": nil}).
				SetUpdate(bson.M{"$set": ttlFields(op.Patch)}))
		case models.OpDeleteListing:
			listingWrites = append(listingWrites, mongo.NewDeleteOneModel().
				SetFilter(bson.M{"_id": op.ListingID}))
		case models.OpDeleteFavorite:
			favoriteWrites = append(favoriteWrites, mongo.NewDeleteOneModel().
				SetFilter(bson.M{"user_id": op.UserID, "listing_id": op.ListingID}))
		default:
			return nil, nil, fmt.Errorf("unsupported operation kind %d", op.Kind)
		}
	}
	return listingWrites, favoriteWrites, nil
}

func ttlFields(p *models.TTLPatch) bson.M {
	set := bson.M{
		"ttl":        p.TTL,
		"ttl_set_at": p.TTLSetAt,
		"ttl_reason": p.Reason,
	}
	if p.ArchivedAt != nil {
		set["archived_at"] = *p.ArchivedAt
	}
	return set
}
