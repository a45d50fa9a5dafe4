package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

const lastRunKeyPrefix = "lifecycle:last_run:"

// Jobs whose last run is reported, in display order.
var recordedJobs = []string{
	models.JobArchive,
	models.JobMigrateTTL,
	models.JobCleanup,
	models.JobSweepFavorites,
}

// RunRecorder keeps the latest run record of each lifecycle job in Redis.
type RunRecorder struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRunRecorder creates a recorder. Records expire after ttl; 0 keeps them forever.
func NewRunRecorder(rdb *redis.Client, ttl time.Duration) *RunRecorder {
	return &RunRecorder{rdb: rdb, ttl: ttl}
}

func lastRunKey(job string) string {
	return lastRunKeyPrefix + job
}

// Record overwrites the stored record of rec.Job.
func (r *RunRecorder) Record(ctx context.Context, rec models.RunRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	if err := r.rdb.Set(ctx, lastRunKey(rec.Job), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store run record for %s: %w", rec.Job, err)
	}
	return nil
}

// LastRuns returns the stored records of all jobs that have one.
func (r *RunRecorder) LastRuns(ctx context.Context) ([]models.RunRecord, error) {
	keys := make([]string, len(recordedJobs))
	for i, job := range recordedJobs {
		keys[i] = lastRunKey(job)
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load run records: %w", err)
	}

	runs := []models.RunRecord{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.RunRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode run record for %s: %w", recordedJobs[i], err)
		}
		runs = append(runs, rec)
	}
	return runs, nil
}
