package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/api/handlers"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/api/middleware"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/services"
)

var testSecrets = auth.Secrets{Scheduler: "cron-secret", Admin: "admin-secret"}

func setupLifecycleEngine(t *testing.T, svc services.ILifecycleService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)
	handler := handlers.NewLifecycleHandler(svc, log)

	r := gin.New()
	g := r.Group("/v1/lifecycle")
	g.Use(middleware.LifecycleAuthMiddleware(testSecrets, log))
	g.POST("/archive", handler.Archive)
	g.POST("/migrate-ttl", handler.MigrateTTL)
	g.POST("/cleanup", handler.Cleanup)
	g.POST("/sweep-favorites", handler.SweepFavorites)
	g.GET("/diagnostics", handler.Diagnostics)
	g.GET("/runs", handler.LastRuns)
	return r
}

func call(r *gin.Engine, method, path, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestLifecycleHandler_Cleanup_Success(t *testing.T) {
	mockSvc := new(MockLifecycleService)
	summary := &models.CleanupSummary{RunID: "r1", TotalDeleted: 1203, TotalFavoritesRemoved: 540, CompletedBatches: 4, Timestamp: time.Now().UTC()}
	mockSvc.On("Cleanup", mock.Anything, services.RunOptions{Principal: auth.PrincipalScheduler}).Return(summary, nil)

	w, body := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/cleanup", "cron-secret")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Cleanup completed", body["message"])
	s, ok := body["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1203), s["totalDeleted"])
	assert.Equal(t, float64(540), s["totalFavoritesRemoved"])
	assert.Equal(t, float64(4), s["completedBatches"])
	assert.NotEmpty(t, s["timestamp"])
	mockSvc.AssertExpectations(t)
}

func TestLifecycleHandler_Cleanup_InvalidToken(t *testing.T) {
	mockSvc := new(MockLifecycleService)

	w, body := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/cleanup", "not-the-secret")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", body["error"])
	mockSvc.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything)
}

func TestLifecycleHandler_Cleanup_MissingHeader(t *testing.T) {
	mockSvc := new(MockLifecycleService)

	w, _ := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/cleanup", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockSvc.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything)
}

func TestLifecycleHandler_Cleanup_PartialFailure(t *testing.T) {
	mockSvc := new(MockLifecycleService)
	partial := &models.CleanupSummary{RunID: "r2", TotalDeleted: 500, CompletedBatches: 1}
	commitErr := &services.BatchCommitError{Batch: 2, Ops: 500, Err: errors.New("write conflict")}
	mockSvc.On("Cleanup", mock.Anything, mock.Anything).Return(partial, commitErr)

	w, body := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/cleanup", "admin-secret")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "partially applied")
	assert.Contains(t, body["details"], "batch 2")
	s, ok := body["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(500), s["totalDeleted"])
}

func TestLifecycleHandler_StoreUnavailable(t *testing.T) {
	mockSvc := new(MockLifecycleService)
	mockSvc.On("Archive", mock.Anything, mock.Anything).Return(nil, &services.StoreUnavailableError{Err: errors.New("no reachable servers")})

	w, body := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/archive", "cron-secret")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Store unavailable", body["error"])
	assert.Contains(t, body["details"], "no reachable servers")
}

func TestLifecycleHandler_GenericFailure(t *testing.T) {
	mockSvc := new(MockLifecycleService)
	mockSvc.On("MigrateTTL", mock.Anything, mock.Anything).Return(nil, errors.New("query failed"))

	w, body := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/migrate-ttl", "cron-secret")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to run ttl migration", body["error"])
	assert.Equal(t, "query failed", body["details"])
}

func TestLifecycleHandler_DryRun(t *testing.T) {
	mockSvc := new(MockLifecycleService)
	mockSvc.On("SweepFavorites", mock.Anything, services.RunOptions{Principal: auth.PrincipalAdmin, DryRun: true}).
		Return(&models.SweepSummary{OrphansFound: 3, TotalFavoritesRemoved: 3, DryRun: true}, nil)

	w, body := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/sweep-favorites?dryRun=true", "admin-secret")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Favorite sweep completed (dry run)", body["message"])
	mockSvc.AssertExpectations(t)
}

func TestLifecycleHandler_InvalidDryRun(t *testing.T) {
	mockSvc := new(MockLifecycleService)

	w, body := call(setupLifecycleEngine(t, mockSvc), "POST", "/v1/lifecycle/archive?dryRun=maybe", "admin-secret")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid dryRun parameter", body["error"])
	mockSvc.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
}

func TestLifecycleHandler_Diagnostics(t *testing.T) {
	mockSvc := new(MockLifecycleService)
	report := &models.DiagnosticReport{
		Summary:          models.DiagnosticSummary{TotalListings: 7, ByStatus: map[string]int{"active": 7}, ByTier: map[string]int{}},
		ExpirationIssues: []models.ExpirationIssue{},
		TTLIssues:        []models.TTLIssue{},
		VisibilityIssues: []models.VisibilityIssue{{ListingID: "x", Status: models.ListingStatusActive}},
		Recommendations: []models.Recommendation{
			{Priority: models.PriorityMedium, Issue: "1 listing leaks", Action: "Run the archiver", RemediationEndpoint: services.EndpointArchive},
		},
	}
	mockSvc.On("Diagnose", mock.Anything, auth.PrincipalAdmin).Return(report, nil)

	w, body := call(setupLifecycleEngine(t, mockSvc), "GET", "/v1/lifecycle/diagnostics", "admin-secret")

	assert.Equal(t, http.StatusOK, w.Code)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(7), summary["totalListings"])
	recs := body["recommendations"].([]interface{})
	require.Len(t, recs, 1)
	assert.Equal(t, "MEDIUM", recs[0].(map[string]interface{})["priority"])
	assert.Equal(t, "/v1/lifecycle/archive", recs[0].(map[string]interface{})["remediationEndpoint"])
}

func TestLifecycleHandler_LastRuns(t *testing.T) {
	mockSvc := new(MockLifecycleService)
	mockSvc.On("LastRuns", mock.Anything, auth.PrincipalScheduler).Return([]models.RunRecord{{Job: models.JobCleanup, Principal: "scheduler"}}, nil)

	w, body := call(setupLifecycleEngine(t, mockSvc), "GET", "/v1/lifecycle/runs", "cron-secret")

	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "cleanup", data[0].(map[string]interface{})["job"])
}
