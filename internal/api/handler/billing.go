package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/billing"
)

// BillingHandler handles subscription and payment endpoints.
type BillingHandler struct {
	billingService *billing.Service
}

// NewBillingHandler creates a new billing handler.
// Parameters:
//   - billingService: billing service instance.
// Returns:
//   - *BillingHandler: initialized handler.
func NewBillingHandler(billingService *billing.Service) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

type checkoutRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// Checkout handles POST /api/v1/billing/checkout.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BillingHandler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	url, err := h.billingService.Checkout(c.Request.Context(), middleware.UserID(c), middleware.UserEmail(c), req.Tier)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownTier) || errors.Is(err, billing.ErrAlreadySubscribed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create checkout session: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url": url,
	})
}

// Webhook handles POST /api/v1/billing/webhook. Stripe authenticates with
// the signature header, so this route skips the auth middleware.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	err = h.billingService.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Webhook processing failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
	})
}

// Subscription handles GET /api/v1/billing/subscription.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BillingHandler) Subscription(c *gin.Context) {
	status, err := h.billingService.Subscription(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load subscription: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}
