package models

import "time"

// Priority of a diagnostic recommendation.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Rank orders priorities, HIGH first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	}
	return 2
}

// TTL issue kinds.
const (
	TTLIssueMissing            = "missing_ttl"
	TTLIssueExpiredNotPurged   = "expired_not_purged"
	TTLIssueInconsistentReason = "inconsistent_reason"
)

// TTLStats summarises ttl coverage.
type TTLStats struct {
	WithTTL    int `json:"withTTL"`
	WithoutTTL int `json:"withoutTTL"`
	ExpiredTTL int `json:"expiredTTL"`
	ValidTTL   int `json:"validTTL"`
}

// DiagnosticSummary holds the aggregate counts of a diagnostic scan.
type DiagnosticSummary struct {
	TotalListings int            `json:"totalListings"`
	ByStatus      map[string]int `json:"byStatus"`
	ByTier        map[string]int `json:"byTier"`
	TTL           TTLStats       `json:"ttl"`
}

// Expiration issue kinds.
const (
	ExpirationIssueOverdue          = "overdue"
	ExpirationIssueMissingExpiresAt = "missing_expires_at"
)

// ExpirationIssue is an active listing that should already have been archived,
// or one the archiver can never select because it has no expiresAt.
type ExpirationIssue struct {
	ListingID    string     `json:"listingId"`
	Kind         string     `json:"kind"`
	OwnerID      string     `json:"ownerId"`
	Tier         string     `json:"tier"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	HoursOverdue float64    `json:"hoursOverdue,omitempty"`
	Detail       string     `json:"detail,omitempty"`
}

// TTLIssue is an archived listing whose ttl is missing, elapsed or inconsistent.
type TTLIssue struct {
	ListingID  string     `json:"listingId"`
	Kind       string     `json:"kind"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
	TTL        *time.Time `json:"ttl,omitempty"`
	TTLReason  TTLReason  `json:"ttlReason,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

// VisibilityIssue is a listing returned by the public active query although it
// carries archive signals.
type VisibilityIssue struct {
	ListingID  string        `json:"listingId"`
	Status     ListingStatus `json:"status"`
	ArchivedAt *time.Time    `json:"archivedAt,omitempty"`
	TTL        *time.Time    `json:"ttl,omitempty"`
}

// Recommendation is one remediation hint produced by the reconciler.
type Recommendation struct {
	Priority            Priority `json:"priority"`
	Issue               string   `json:"issue"`
	Action              string   `json:"action"`
	RemediationEndpoint string   `json:"remediationEndpoint,omitempty"`
}

// DiagnosticReport is the full read-only audit result.
type DiagnosticReport struct {
	GeneratedAt      time.Time         `json:"generatedAt"`
	Summary          DiagnosticSummary `json:"summary"`
	ExpirationIssues []ExpirationIssue `json:"expirationIssues"`
	TTLIssues        []TTLIssue        `json:"ttlIssues"`
	VisibilityIssues []VisibilityIssue `json:"visibilityIssues"`
	Recommendations  []Recommendation  `json:"recommendations"`
	LastRuns         []RunRecord       `json:"lastRuns,omitempty"`
}
