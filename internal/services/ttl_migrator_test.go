package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

func TestMigrateTTL_ElapsedArchiveIsPurgedNextCleanup(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	now := env.now

	env.store.putListing(archivedListing("legacy", now.Add(-10*24*time.Hour), nil))

	summary, err := env.svc.MigrateTTL(ctx, scheduler())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalMigrated)
	assert.Equal(t, 0, summary.ImmediatelyExpired)

	l, _ := env.store.listing("legacy")
	require.NotNil(t, l.TTL)
	assert.True(t, now.Add(-3*24*time.Hour).Equal(*l.TTL))
	assert.Equal(t, models.TTLReasonMigrationNormal, l.TTLReason)
	require.NotNil(t, l.TTLSetAt)
	assert.True(t, now.Equal(*l.TTLSetAt))

	cleanup, err := env.svc.Cleanup(ctx, scheduler())
	require.NoError(t, err)
	assert.Equal(t, 1, cleanup.TotalDeleted)
	_, exists := env.store.listing("legacy")
	assert.False(t, exists)
}

func TestMigrateTTL_ImmediateExpiryAndBackfill(t *testing.T) {
	env := newTestEnv(t, testConfig())
	now := env.now

	// Archived by hand long ago without archivedAt.
	noArchivedAt := models.Listing{
		ID:        "manual",
		Status:    models.ListingStatusArchived,
		ExpiresAt: ptr(now.Add(-20 * 24 * time.Hour)),
	}
	// No archivedAt, expired yesterday.
	recent := models.Listing{
		ID:        "recent",
		Status:    models.ListingStatusArchived,
		ExpiresAt: ptr(now.Add(-24 * time.Hour)),
	}
	env.store.putListing(noArchivedAt)
	env.store.putListing(recent)

	summary, err := env.svc.MigrateTTL(context.Background(), scheduler())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalMigrated)
	assert.Equal(t, 1, summary.ImmediatelyExpired)

	manual, _ := env.store.listing("manual")
	require.NotNil(t, manual.TTL)
	assert.True(t, now.Add(24*time.Hour).Equal(*manual.TTL))
	assert.Equal(t, models.TTLReasonMigrationImmediateExpiry, manual.TTLReason)
	require.NotNil(t, manual.ArchivedAt)
	assert.True(t, now.Equal(*manual.ArchivedAt))

	r, _ := env.store.listing("recent")
	require.NotNil(t, r.TTL)
	assert.True(t, now.Add(7*24*time.Hour).Equal(*r.TTL))
	assert.Equal(t, models.TTLReasonMigrationNormal, r.TTLReason)
}

func TestMigrateTTL_NeverOverwritesExistingTTL(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	now := env.now

	ttl := now.Add(2 * 24 * time.Hour)
	env.store.putListing(archivedListing("has-ttl", now.Add(-5*24*time.Hour), &ttl))
	env.store.putListing(archivedListing("no-ttl", now.Add(-24*time.Hour), nil))

	first, err := env.svc.MigrateTTL(ctx, scheduler())
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalMigrated)
	after, _ := env.store.listing("no-ttl")

	env.setNow(now.Add(6 * time.Hour))
	second, err := env.svc.MigrateTTL(ctx, scheduler())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Candidates)
	assert.Equal(t, 0, second.TotalMigrated)

	again, _ := env.store.listing("no-ttl")
	assert.Equal(t, after, again)

	kept, _ := env.store.listing("has-ttl")
	assert.True(t, ttl.Equal(*kept.TTL))
	assert.Equal(t, models.TTLReasonArchiverAssigned, kept.TTLReason)
}

func TestMigrateTTL_DryRun(t *testing.T) {
	env := newTestEnv(t, testConfig())
	now := env.now
	env.store.putListing(models.Listing{ID: "a", Status: models.ListingStatusArchived, ExpiresAt: ptr(now.Add(-30 * 24 * time.Hour))})

	summary, err := env.svc.MigrateTTL(context.Background(), RunOptions{Principal: auth.PrincipalAdmin, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalMigrated)
	assert.Equal(t, 1, summary.ImmediatelyExpired)
	assert.Empty(t, env.store.commits)

	l, _ := env.store.listing("a")
	assert.Nil(t, l.TTL)
}

func TestMigrateTTL_Unauthorized(t *testing.T) {
	env := newTestEnv(t, testConfig())

	_, err := env.svc.MigrateTTL(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 0, env.store.readCount())
}
