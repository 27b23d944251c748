package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/limits"
)

// LimitHandler handles usage limit endpoints.
type LimitHandler struct {
	checker *limits.Checker
}

// NewLimitHandler creates a new limit handler.
// Parameters:
//   - checker: daily quota checker.
// Returns:
//   - *LimitHandler: initialized handler.
func NewLimitHandler(checker *limits.Checker) *LimitHandler {
	return &LimitHandler{
		checker: checker,
	}
}

// Get handles GET /api/v1/limits. Reporting never enforces: a capped user
// still gets a 200 with their current numbers.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *LimitHandler) Get(c *gin.Context) {
	status, err := h.checker.Status(c.Request.Context(), middleware.UserID(c), DailyMemeLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check usage limits: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}
