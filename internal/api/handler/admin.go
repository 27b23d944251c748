package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memelab/memeforge/internal/repository"
)

// AdminHandler handles operator endpoints. Routes using it sit behind the
// admin token middleware.
type AdminHandler struct {
	templateRepo   *repository.TemplateRepository
	candidateRepo  *repository.CandidateRepository
	requestLogRepo *repository.RequestLogRepository
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - templateRepo: template catalog repository.
//   - candidateRepo: candidate repository.
//   - requestLogRepo: request log repository.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(
	templateRepo *repository.TemplateRepository,
	candidateRepo *repository.CandidateRepository,
	requestLogRepo *repository.RequestLogRepository,
) *AdminHandler {
	return &AdminHandler{
		templateRepo:   templateRepo,
		candidateRepo:  candidateRepo,
		requestLogRepo: requestLogRepo,
	}
}

// Stats handles GET /api/v1/admin/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	templates, err := h.templateRepo.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	candidates, err := h.candidateRepo.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	requests, err := h.requestLogRepo.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"templates":  templates,
		"candidates": candidates,
		"requests":   requests,
	})
}
