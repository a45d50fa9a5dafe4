package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

// Issue counts at or above this escalate a recommendation to HIGH.
const highPriorityThreshold = 5

// Remediation endpoints referenced by recommendations.
const (
	EndpointArchive    = "/v1/lifecycle/archive"
	EndpointMigrateTTL = "/v1/lifecycle/migrate-ttl"
	EndpointCleanup    = "/v1/lifecycle/cleanup"
)

// Diagnose audits status, ttl and public visibility of every listing. It only reads.
func (s *lifecycleService) Diagnose(ctx context.Context, principal auth.Principal) (*models.DiagnosticReport, error) {
	now, err := s.begin(ctx, principal)
	if err != nil {
		return nil, err
	}

	listings, err := s.store.FindAllListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan listings: %w", err)
	}
	public, err := s.store.FindPublicListings(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to run public listing query: %w", err)
	}

	report := &models.DiagnosticReport{
		GeneratedAt: now,
		Summary: models.DiagnosticSummary{
			TotalListings: len(listings),
			ByStatus:      map[string]int{},
			ByTier:        map[string]int{},
		},
		ExpirationIssues: []models.ExpirationIssue{},
		TTLIssues:        []models.TTLIssue{},
		VisibilityIssues: []models.VisibilityIssue{},
	}

	for i := range listings {
		l := &listings[i]
		s.tally(&report.Summary, l, now)

		switch l.Status {
		case models.ListingStatusActive:
			if issue, ok := s.expirationIssue(l, now); ok {
				report.ExpirationIssues = append(report.ExpirationIssues, issue)
			}
		case models.ListingStatusArchived:
			report.TTLIssues = append(report.TTLIssues, s.ttlIssues(l, now)...)
		}
	}

	for i := range public {
		l := &public[i]
		if l.Status == models.ListingStatusArchived || l.HasArchiveSignals() {
			report.VisibilityIssues = append(report.VisibilityIssues, models.VisibilityIssue{
				ListingID:  l.ID,
				Status:     l.Status,
				ArchivedAt: l.ArchivedAt,
				TTL:        l.TTL,
			})
		}
	}

	report.Recommendations = recommend(report)

	if s.recorder != nil {
		runs, err := s.recorder.LastRuns(ctx)
		if err != nil {
			s.log.Warn("failed to load recorded runs for diagnostics", zap.Error(err))
		} else {
			report.LastRuns = runs
		}
	}

	s.log.Info("diagnostics generated",
		zap.String("principal", string(principal)),
		zap.Int("listings", report.Summary.TotalListings),
		zap.Int("expiration_issues", len(report.ExpirationIssues)),
		zap.Int("ttl_issues", len(report.TTLIssues)),
		zap.Int("visibility_issues", len(report.VisibilityIssues)))
	return report, nil
}

func (s *lifecycleService) tally(sum *models.DiagnosticSummary, l *models.Listing, now time.Time) {
	sum.ByStatus[string(l.Status)]++
	tier := string(l.AccountTierAtCreation)
	if tier == "" {
		tier = "unknown"
	}
	sum.ByTier[tier]++

	if l.TTL != nil {
		sum.TTL.WithTTL++
		if l.TTL.Before(now) {
			sum.TTL.ExpiredTTL++
		} else {
			sum.TTL.ValidTTL++
		}
	} else if l.Status == models.ListingStatusArchived {
		sum.TTL.WithoutTTL++
	}
}

func (s *lifecycleService) expirationIssue(l *models.Listing, now time.Time) (models.ExpirationIssue, bool) {
	issue := models.ExpirationIssue{
		ListingID: l.ID,
		OwnerID:   l.OwnerID,
		Tier:      string(l.AccountTierAtCreation),
	}
	if l.ExpiresAt == nil {
		issue.Kind = models.ExpirationIssueMissingExpiresAt
		issue.Detail = "active listing has no expiresAt and is never selected by the archiver"
		if !l.CreatedAt.IsZero() {
			due := s.policy.ExpiresAt(l.AccountTierAtCreation, l.CreatedAt)
			issue.Detail = fmt.Sprintf("%s; its tier window ends %s", issue.Detail, due.Format(time.RFC3339))
		}
		return issue, true
	}
	overdue := now.Sub(*l.ExpiresAt)
	if overdue <= s.tolerance {
		return models.ExpirationIssue{}, false
	}
	expiresAt := *l.ExpiresAt
	issue.Kind = models.ExpirationIssueOverdue
	issue.ExpiresAt = &expiresAt
	issue.HoursOverdue = math.Round(overdue.Hours()*10) / 10
	return issue, true
}

func (s *lifecycleService) ttlIssues(l *models.Listing, now time.Time) []models.TTLIssue {
	base := models.TTLIssue{ListingID: l.ID, ArchivedAt: l.ArchivedAt, TTL: l.TTL, TTLReason: l.TTLReason}

	if l.TTL == nil {
		issue := base
		issue.Kind = models.TTLIssueMissing
		if l.TTLReason != "" {
			issue.Detail = "ttlReason is set but ttl is missing"
		}
		return []models.TTLIssue{issue}
	}

	var issues []models.TTLIssue
	if l.TTL.Before(now) {
		issue := base
		issue.Kind = models.TTLIssueExpiredNotPurged
		issue.Detail = fmt.Sprintf("ttl elapsed %.1f hours ago", now.Sub(*l.TTL).Hours())
		issues = append(issues, issue)
	}
	if detail := s.reasonInconsistency(l); detail != "" {
		issue := base
		issue.Kind = models.TTLIssueInconsistentReason
		issue.Detail = detail
		issues = append(issues, issue)
	}
	return issues
}

// reasonInconsistency explains why ttlReason does not fit the stored fields,
// or returns "" when it does.
func (s *lifecycleService) reasonInconsistency(l *models.Listing) string {
	if !l.TTLReason.Valid() {
		if l.TTLReason == "" {
			return "ttl is set without a ttlReason"
		}
		return fmt.Sprintf("unknown ttlReason %q", l.TTLReason)
	}
	if l.ArchivedAt == nil {
		return "ttl is set but archivedAt is missing"
	}
	if l.TTL.Before(*l.ArchivedAt) && l.TTLReason != models.TTLReasonMigrationImmediateExpiry {
		return "ttl precedes archivedAt"
	}
	if l.TTLReason == models.TTLReasonMigrationImmediateExpiry && l.TTLSetAt != nil &&
		l.TTL.After(l.TTLSetAt.Add(s.policy.GracePeriod)) {
		return "immediate-expiry ttl is later than the grace period allows"
	}
	return ""
}

func recommend(r *models.DiagnosticReport) []models.Recommendation {
	ttlCounts := map[string]int{}
	for _, issue := range r.TTLIssues {
		ttlCounts[issue.Kind]++
	}
	expCounts := map[string]int{}
	for _, issue := range r.ExpirationIssues {
		expCounts[issue.Kind]++
	}

	var recs []models.Recommendation
	add := func(count int, below models.Priority, issue, action, endpoint string) {
		if count == 0 {
			return
		}
		p := below
		if count >= highPriorityThreshold {
			p = models.PriorityHigh
		}
		recs = append(recs, models.Recommendation{
			Priority:            p,
			Issue:               issue,
			Action:              action,
			RemediationEndpoint: endpoint,
		})
	}

	add(expCounts[models.ExpirationIssueOverdue], models.PriorityMedium,
		fmt.Sprintf("%d active listings are past their expiration and were not archived", expCounts[models.ExpirationIssueOverdue]),
		"Run the archiver", EndpointArchive)
	add(expCounts[models.ExpirationIssueMissingExpiresAt], models.PriorityMedium,
		fmt.Sprintf("%d active listings have no expiresAt and will never be archived", expCounts[models.ExpirationIssueMissingExpiresAt]),
		"Set expiresAt from createdAt and the tier's active window, then run the archiver", "")
	add(len(r.VisibilityIssues), models.PriorityMedium,
		fmt.Sprintf("%d listings with archive signals are still returned by the public active query", len(r.VisibilityIssues)),
		"Run the archiver; listings whose expiresAt is still in the future need their status corrected by hand", EndpointArchive)
	add(ttlCounts[models.TTLIssueMissing], models.PriorityMedium,
		fmt.Sprintf("%d archived listings have no ttl", ttlCounts[models.TTLIssueMissing]),
		"Run the ttl migration", EndpointMigrateTTL)
	add(ttlCounts[models.TTLIssueExpiredNotPurged], models.PriorityLow,
		fmt.Sprintf("%d archived listings have an elapsed ttl and were not purged", ttlCounts[models.TTLIssueExpiredNotPurged]),
		"Run cleanup", EndpointCleanup)
	add(ttlCounts[models.TTLIssueInconsistentReason], models.PriorityLow,
		fmt.Sprintf("%d archived listings have a ttlReason that does not match their fields", ttlCounts[models.TTLIssueInconsistentReason]),
		"Review these listings; the migration never overwrites an existing ttl", "")

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Rank() < recs[j].Priority.Rank()
	})
	if recs == nil {
		recs = []models.Recommendation{}
	}
	return recs
}
