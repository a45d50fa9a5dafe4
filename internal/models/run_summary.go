package models

import "time"

// Job names, also used as keys for recorded run summaries.
const (
	JobArchive        = "archive"
	JobMigrateTTL     = "migrate_ttl"
	JobCleanup        = "cleanup"
	JobSweepFavorites = "sweep_favorites"
)

// SkippedListing is a listing excluded from a run because of a per-entity error.
// It stays eligible for the next run.
type SkippedListing struct {
	ListingID string `json:"listingId"`
	Phase     string `json:"phase"`
	Error     string `json:"error"`
}

// ArchiveSummary reports an archiver run.
type ArchiveSummary struct {
	RunID              string    `json:"runId"`
	Candidates         int       `json:"candidates"`
	TotalArchived      int       `json:"totalArchived"`
	ImmediatelyExpired int       `json:"immediatelyExpired"`
	CompletedBatches   int       `json:"completedBatches"`
	DryRun             bool      `json:"dryRun,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// MigrationSummary reports a TTL migrator run.
type MigrationSummary struct {
	RunID              string    `json:"runId"`
	Candidates         int       `json:"candidates"`
	TotalMigrated      int       `json:"totalMigrated"`
	ImmediatelyExpired int       `json:"immediatelyExpired"`
	AlreadySet         int       `json:"alreadySet"`
	CompletedBatches   int       `json:"completedBatches"`
	DryRun             bool      `json:"dryRun,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// CleanupSummary reports a cleanup run. On a batch commit failure it holds
// whatever was committed before the failure.
type CleanupSummary struct {
	RunID                 string           `json:"runId"`
	Candidates            int              `json:"candidates"`
	TotalDeleted          int              `json:"totalDeleted"`
	TotalFavoritesRemoved int              `json:"totalFavoritesRemoved"`
	ImagesRemoved         int              `json:"imagesRemoved"`
	CompletedBatches      int              `json:"completedBatches"`
	Skipped               []SkippedListing `json:"skipped,omitempty"`
	DryRun                bool             `json:"dryRun,omitempty"`
	Timestamp             time.Time        `json:"timestamp"`
}

// SweepSummary reports a favorite sweep run.
type SweepSummary struct {
	RunID                 string    `json:"runId"`
	OrphansFound          int       `json:"orphansFound"`
	TotalFavoritesRemoved int       `json:"totalFavoritesRemoved"`
	CompletedBatches      int       `json:"completedBatches"`
	DryRun                bool      `json:"dryRun,omitempty"`
	Timestamp             time.Time `json:"timestamp"`
}

// RunRecord is what the run recorder stores for the latest run of a job.
type RunRecord struct {
	Job        string      `json:"job"`
	Principal  string      `json:"principal"`
	Summary    interface{} `json:"summary"`
	Error      string      `json:"error,omitempty"`
	RecordedAt time.Time   `json:"recordedAt"`
}
