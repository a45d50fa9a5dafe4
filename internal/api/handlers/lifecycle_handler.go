package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/api/middleware"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/services"
)

// LifecycleHandler exposes the lifecycle jobs and diagnostics over HTTP.
type LifecycleHandler struct {
	lifecycleService services.ILifecycleService
	log              *zap.Logger
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(lifecycleService services.ILifecycleService, log *zap.Logger) *LifecycleHandler {
	return &LifecycleHandler{lifecycleService: lifecycleService, log: log}
}

type jobFunc func(ctx context.Context, opts services.RunOptions) (interface{}, error)

// Archive handles POST /v1/lifecycle/archive
func (h *LifecycleHandler) Archive(c *gin.Context) {
	h.runJob(c, "archive", "Archive completed", func(ctx context.Context, opts services.RunOptions) (interface{}, error) {
		return h.lifecycleService.Archive(ctx, opts)
	})
}

// MigrateTTL handles POST /v1/lifecycle/migrate-ttl
func (h *LifecycleHandler) MigrateTTL(c *gin.Context) {
	h.runJob(c, "ttl migration", "TTL migration completed", func(ctx context.Context, opts services.RunOptions) (interface{}, error) {
		return h.lifecycleService.MigrateTTL(ctx, opts)
	})
}

// Cleanup handles POST /v1/lifecycle/cleanup
func (h *LifecycleHandler) Cleanup(c *gin.Context) {
	h.runJob(c, "cleanup", "Cleanup completed", func(ctx context.Context, opts services.RunOptions) (interface{}, error) {
		return h.lifecycleService.Cleanup(ctx, opts)
	})
}

// SweepFavorites handles POST /v1/lifecycle/sweep-favorites
func (h *LifecycleHandler) SweepFavorites(c *gin.Context) {
	h.runJob(c, "favorite sweep", "Favorite sweep completed", func(ctx context.Context, opts services.RunOptions) (interface{}, error) {
		return h.lifecycleService.SweepFavorites(ctx, opts)
	})
}

func (h *LifecycleHandler) runJob(c *gin.Context, job, successMessage string, run jobFunc) {
	dryRun, err := strconv.ParseBool(c.DefaultQuery("dryRun", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dryRun parameter", "details": err.Error()})
		return
	}

	opts := services.RunOptions{Principal: middleware.PrincipalFrom(c), DryRun: dryRun}
	summary, err := run(c.Request.Context(), opts)
	if err != nil {
		_ = c.Error(err)
		var commitErr *services.BatchCommitError
		if errors.As(err, &commitErr) {
			// Earlier batches stand; report them alongside the failure.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Batch commit failed, " + job + " partially applied",
				"details": err.Error(),
				"summary": summary,
			})
			return
		}
		h.writeError(c, job, err)
		return
	}

	message := successMessage
	if dryRun {
		message += " (dry run)"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "summary": summary})
}

// Diagnostics handles GET /v1/lifecycle/diagnostics
func (h *LifecycleHandler) Diagnostics(c *gin.Context) {
	report, err := h.lifecycleService.Diagnose(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		_ = c.Error(err)
		h.writeError(c, "diagnostics", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// LastRuns handles GET /v1/lifecycle/runs
func (h *LifecycleHandler) LastRuns(c *gin.Context) {
	runs, err := h.lifecycleService.LastRuns(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		_ = c.Error(err)
		h.writeError(c, "run history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (h *LifecycleHandler) writeError(c *gin.Context, job string, err error) {
	var unavailable *services.StoreUnavailableError
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.As(err, &unavailable):
		h.log.Error("store unavailable", zap.String("job", job), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Store unavailable", "details": err.Error()})
	default:
		h.log.Error("lifecycle request failed", zap.String("job", job), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run " + job, "details": err.Error()})
	}
}
