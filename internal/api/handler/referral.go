package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/service"
)

// ReferralHandler handles referral program endpoints.
type ReferralHandler struct {
	referralService *service.ReferralService
}

// NewReferralHandler creates a new referral handler.
// Parameters:
//   - referralService: referral service instance.
// Returns:
//   - *ReferralHandler: initialized handler.
func NewReferralHandler(referralService *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{
		referralService: referralService,
	}
}

type applyReferralRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
}

// Apply handles POST /api/v1/referrals/apply.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReferralHandler) Apply(c *gin.Context) {
	var req applyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	err := h.referralService.Apply(c.Request.Context(), middleware.UserID(c), req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReferral):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAlreadyReferred), errors.Is(err, service.ErrSelfReferral):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to apply referral code: " + err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Referral code applied successfully",
	})
}

// Code handles GET /api/v1/referrals/code. The caller's code is created on
// first access.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReferralHandler) Code(c *gin.Context) {
	profile, err := h.referralService.GetOrCreateCode(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get referral code: " + err.Error(),
		})
		return
	}

	var referrerID interface{}
	if profile.ReferrerID != "" {
		referrerID = profile.ReferrerID
	}

	c.JSON(http.StatusOK, gin.H{
		"referral_code":  profile.ReferralCode,
		"referral_count": profile.ReferralCount,
		"referrer_id":    referrerID,
	})
}
