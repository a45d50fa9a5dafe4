package services

import (
	"time"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/config"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// Policy maps account tiers and archive events to lifecycle instants.
// All methods are pure.
type Policy struct {
	FreeActiveWindow    time.Duration
	PremiumActiveWindow time.Duration
	ArchiveDuration     time.Duration
	GracePeriod         time.Duration
}

// NewPolicy builds a Policy from configuration.
func NewPolicy(cfg *config.Config) Policy {
	return Policy{
		FreeActiveWindow:    cfg.FreeActiveWindow,
		PremiumActiveWindow: cfg.PremiumActiveWindow,
		ArchiveDuration:     cfg.ArchiveDuration,
		GracePeriod:         cfg.GracePeriod,
	}
}

// ActiveWindow returns how long a listing of the given tier stays live.
// Unknown tiers get the free window.
func (p Policy) ActiveWindow(tier models.AccountTier) time.Duration {
	if tier == models.AccountTierPremium {
		return p.PremiumActiveWindow
	}
	return p.FreeActiveWindow
}

// ExpiresAt returns the end of the active window for a listing created at createdAt.
func (p Policy) ExpiresAt(tier models.AccountTier, createdAt time.Time) time.Time {
	return createdAt.Add(p.ActiveWindow(tier))
}

// IsImmediatelyExpired reports whether the listing was already past its deletion
// horizon before any archive event was recorded for it: no archivedAt, and
// expiresAt + ArchiveDuration is not after now.
func (p Policy) IsImmediatelyExpired(l *models.Listing, now time.Time) bool {
	if l.ArchivedAt != nil || l.ExpiresAt == nil {
		return false
	}
	return !l.ExpiresAt.Add(p.ArchiveDuration).After(now)
}

// ComputeTTL returns the deletion instant for a listing archived at archivedAt.
// Immediately expired listings get now + GracePeriod instead.
func (p Policy) ComputeTTL(l *models.Listing, archivedAt, now time.Time) time.Time {
	if p.IsImmediatelyExpired(l, now) {
		return now.Add(p.GracePeriod)
	}
	return archivedAt.Add(p.ArchiveDuration)
}
