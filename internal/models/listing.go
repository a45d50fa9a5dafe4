package models

import (
	"time"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusArchived ListingStatus = "archived"
	ListingStatusSold     ListingStatus = "sold"
)

// AccountTier is the owner's account tier at the time the listing was created.
type AccountTier string

const (
	AccountTierFree    AccountTier = "free"
	AccountTierPremium AccountTier = "premium"
)

// TTLReason records which code path assigned a listing's ttl.
type TTLReason string

const (
	TTLReasonMigrationNormal          TTLReason = "migration_normal"
	TTLReasonMigrationImmediateExpiry TTLReason = "migration_immediate_expiry"
	TTLReasonArchiverAssigned         TTLReason = "archiver_assigned"
)

// Valid reports whether r is one of the known reasons.
func (r TTLReason) Valid() bool {
	switch r {
	case TTLReasonMigrationNormal, TTLReasonMigrationImmediateExpiry, TTLReasonArchiverAssigned:
		return true
	}
	return false
}

// Listing represents a marketplace listing as far as the lifecycle engine is concerned.
type Listing struct {
	ID                    string        `bson:"_id" json:"id"`
	Status                ListingStatus `bson:"status" json:"status"`
	OwnerID               string        `bson:"owner_id" json:"ownerId"`
	AccountTierAtCreation AccountTier   `bson:"account_tier_at_creation" json:"accountTierAtCreation"`
	Title                 string        `bson:"title,omitempty" json:"title,omitempty"`
	Images                []string      `bson:"images,omitempty" json:"images,omitempty"` // S3 keys
	CreatedAt             time.Time     `bson:"created_at" json:"createdAt"`
	ExpiresAt             *time.Time    `bson:"expires_at,omitempty" json:"expiresAt,omitempty"`
	ArchivedAt            *time.Time    `bson:"archived_at,omitempty" json:"archivedAt,omitempty"`
	TTL                   *time.Time    `bson:"ttl,omitempty" json:"ttl,omitempty"`
	TTLSetAt              *time.Time    `bson:"ttl_set_at,omitempty" json:"ttlSetAt,omitempty"`
	TTLReason             TTLReason     `bson:"ttl_reason,omitempty" json:"ttlReason,omitempty"`
}

// HasArchiveSignals reports whether the listing carries any field that is only
// written when it is archived.
func (l *Listing) HasArchiveSignals() bool {
	return l.ArchivedAt != nil || l.TTL != nil
}
