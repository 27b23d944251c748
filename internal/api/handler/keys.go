package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/auth"
)

// KeyHandler handles API key management endpoints.
type KeyHandler struct {
	keyService *auth.APIKeyService
}

// NewKeyHandler creates a new API key handler.
// Parameters:
//   - keyService: API key service instance.
// Returns:
//   - *KeyHandler: initialized handler.
func NewKeyHandler(keyService *auth.APIKeyService) *KeyHandler {
	return &KeyHandler{
		keyService: keyService,
	}
}

type createKeyRequest struct {
	Name      string     `json:"name" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Create handles POST /api/v1/keys. The raw key appears in this response
// only; afterwards the service knows just its hash.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *KeyHandler) Create(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	raw, key, err := h.keyService.Mint(c.Request.Context(), middleware.UserID(c), req.Name, req.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create API key: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"api_key": raw,
		"key":     key,
	})
}

// List handles GET /api/v1/keys.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *KeyHandler) List(c *gin.Context) {
	keys, err := h.keyService.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list API keys: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"keys":  keys,
		"total": len(keys),
	})
}

// Revoke handles DELETE /api/v1/keys/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *KeyHandler) Revoke(c *gin.Context) {
	err := h.keyService.Revoke(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, auth.ErrAPIKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": auth.ErrAPIKeyNotFound.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to revoke API key: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "API key revoked",
	})
}
