package models

import (
	"fmt"
	"time"
)

// OperationKind identifies a single mutation inside a batch commit.
type OperationKind int

const (
	// OpArchiveListing moves an active listing to archived and stamps its ttl.
	// Applied only while the stored status is still active.
	OpArchiveListing OperationKind = iota + 1
	// OpAssignTTL sets ttl on an archived listing. Applied only while ttl is absent.
	OpAssignTTL
	// OpDeleteListing removes a listing document. Missing documents are a no-op.
	OpDeleteListing
	// OpDeleteFavorite removes one favorite. Missing documents are a no-op.
	OpDeleteFavorite
)

func (k OperationKind) String() string {
	switch k {
	case OpArchiveListing:
		return "archive_listing"
	case OpAssignTTL:
		return "assign_ttl"
	case OpDeleteListing:
		return "delete_listing"
	case OpDeleteFavorite:
		return "delete_favorite"
	}
	return "unknown"
}

// TTLPatch carries the fields written by archive and ttl assignment operations.
type TTLPatch struct {
	ArchivedAt *time.Time // nil leaves the stored value alone
	TTL        time.Time
	TTLSetAt   time.Time
	Reason     TTLReason
}

// Operation is one store mutation. Which fields are used depends on Kind.
type Operation struct {
	Kind      OperationKind
	ListingID string
	UserID    string   // OpDeleteFavorite
	Images    []string // OpDeleteListing, object keys to purge once committed
	Patch     *TTLPatch
}

// DeleteListingOp builds the delete operation for a listing.
func DeleteListingOp(l *Listing) Operation {
	return Operation{Kind: OpDeleteListing, ListingID: l.ID, Images: l.Images}
}

// DeleteFavoriteOp builds the delete operation for a favorite.
func DeleteFavoriteOp(f *Favorite) Operation {
	return Operation{Kind: OpDeleteFavorite, ListingID: f.ListingID, UserID: f.UserID}
}

// PartialCommitError is returned by a non-transactional commit that failed
// after some of its operations were already written. Applied holds those
// operations in commit order.
type PartialCommitError struct {
	Applied []Operation
	Err     error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("commit failed after %d operations were applied: %v", len(e.Applied), e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }
