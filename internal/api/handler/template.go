package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/repository"
)

// TemplateHandler handles template catalog endpoints.
type TemplateHandler struct {
	templateRepo *repository.TemplateRepository
}

// NewTemplateHandler creates a new template handler.
// Parameters:
//   - templateRepo: template catalog repository.
// Returns:
//   - *TemplateHandler: initialized handler.
func NewTemplateHandler(templateRepo *repository.TemplateRepository) *TemplateHandler {
	return &TemplateHandler{
		templateRepo: templateRepo,
	}
}

// List handles GET /api/v1/templates.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TemplateHandler) List(c *gin.Context) {
	format := domain.TemplateFormat(c.Query("format"))
	if format != "" && !format.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid format: must be one of single, two-panel, four-panel, caption-only",
		})
		return
	}

	tag := c.Query("tag")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx := c.Request.Context()

	var templates []domain.Template
	var err error
	if tag != "" {
		// Tags live in a JSON-encoded column, so tag filtering happens here
		// rather than in SQL. The page is cut after filtering.
		templates, err = h.templateRepo.List(ctx, format, 0, 0)
		if err == nil {
			templates = pageByTag(templates, tag, limit, offset)
		}
	} else {
		templates, err = h.templateRepo.List(ctx, format, limit, offset)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list templates: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"templates": templates,
		"total":     len(templates),
	})
}

// pageByTag keeps templates carrying tag and applies offset/limit to the result.
func pageByTag(templates []domain.Template, tag string, limit, offset int) []domain.Template {
	matched := make([]domain.Template, 0, len(templates))
	for _, t := range templates {
		for _, candidate := range t.Tags {
			if candidate == tag {
				matched = append(matched, t)
				break
			}
		}
	}

	if offset >= len(matched) {
		return []domain.Template{}
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// Get handles GET /api/v1/templates/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TemplateHandler) Get(c *gin.Context) {
	id := c.Param("id")

	template, err := h.templateRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Template not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load template: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, template)
}
