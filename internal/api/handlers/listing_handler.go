package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/services"
)

const (
	defaultPublicLimit = 50
	maxPublicLimit     = 200
)

// ListingHandler handles the public listing endpoints.
type ListingHandler struct {
	lifecycleService services.ILifecycleService
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(lifecycleService services.ILifecycleService) *ListingHandler {
	return &ListingHandler{lifecycleService: lifecycleService}
}

// ActiveListings handles GET /v1/listings/active
func (h *ListingHandler) ActiveListings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPublicLimit)))
	if err != nil || limit <= 0 || limit > maxPublicLimit {
		limit = defaultPublicLimit
	}

	listings, err := h.lifecycleService.PublicListings(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load listings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listings})
}
