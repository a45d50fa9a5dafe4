package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/services"
)

// --- Mocks ---

// MockLifecycleService implements services.ILifecycleService
type MockLifecycleService struct {
	mock.Mock
}

var _ services.ILifecycleService = (*MockLifecycleService)(nil)

func (m *MockLifecycleService) Archive(ctx context.Context, opts services.RunOptions) (*models.ArchiveSummary, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ArchiveSummary), args.Error(1)
}

func (m *MockLifecycleService) MigrateTTL(ctx context.Context, opts services.RunOptions) (*models.MigrationSummary, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MigrationSummary), args.Error(1)
}

func (m *MockLifecycleService) Cleanup(ctx context.Context, opts services.RunOptions) (*models.CleanupSummary, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CleanupSummary), args.Error(1)
}

func (m *MockLifecycleService) SweepFavorites(ctx context.Context, opts services.RunOptions) (*models.SweepSummary, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SweepSummary), args.Error(1)
}

func (m *MockLifecycleService) Diagnose(ctx context.Context, principal auth.Principal) (*models.DiagnosticReport, error) {
	args := m.Called(ctx, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DiagnosticReport), args.Error(1)
}

func (m *MockLifecycleService) LastRuns(ctx context.Context, principal auth.Principal) ([]models.RunRecord, error) {
	args := m.Called(ctx, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RunRecord), args.Error(1)
}

func (m *MockLifecycleService) PublicListings(ctx context.Context, limit int) ([]models.Listing, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}
