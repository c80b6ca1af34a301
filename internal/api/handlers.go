package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quantgate/internal/version"
)

// RollbackRequest represents the manual rollback payload
type RollbackRequest struct {
	VersionID string `json:"version_id" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// ListVersions returns all versions for a strategy, oldest first
func (h *Handlers) ListVersions(c *gin.Context) {
	strategy := c.Param("strategy")
	versions, err := h.versions.List(c.Request.Context(), strategy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": strategy, "versions": versions})
}

// ActiveVersion returns the currently active version for a strategy
func (h *Handlers) ActiveVersion(c *gin.Context) {
	strategy := c.Param("strategy")
	active, err := h.versions.Active(c.Request.Context(), strategy)
	if err != nil {
		if errors.Is(err, version.ErrNoActive) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active version", "strategy": strategy})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, active)
}

// ListOptimizations returns re-optimization run history for a strategy
func (h *Handlers) ListOptimizations(c *gin.Context) {
	strategy := c.Param("strategy")
	results, err := h.state.Results(c.Request.Context(), strategy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	pending, err := h.state.Pending(c.Request.Context(), strategy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy": strategy,
		"results":  results,
		"pending":  pending,
	})
}

// DivergenceReport returns the rolling live-vs-expected divergence report
func (h *Handlers) DivergenceReport(c *gin.Context) {
	strategy := c.Param("strategy")
	report, err := h.tracker.DivergenceReport(c.Request.Context(), strategy)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Rollback executes a manual rollback to a specific version
func (h *Handlers) Rollback(c *gin.Context) {
	strategy := c.Param("strategy")

	var req RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.scheduler.RollbackTo(c.Request.Context(), strategy, req.VersionID, req.Reason); err != nil {
		if errors.Is(err, version.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy":   strategy,
		"version_id": req.VersionID,
		"status":     "rolled_back",
	})
}
