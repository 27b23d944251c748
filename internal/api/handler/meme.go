package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/billing"
	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/limits"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
	"github.com/memelab/memeforge/internal/service"
)

// DailyMemeLimit is the quota key charged once per admitted generation request.
const DailyMemeLimit = "daily_memes"

// MemeHandler handles meme generation endpoints.
type MemeHandler struct {
	generateService *service.GenerateService
	limitChecker    *limits.Checker
	billingService  *billing.Service
	candidateRepo   *repository.CandidateRepository
	requestLogRepo  *repository.RequestLogRepository
}

// NewMemeHandler creates a new meme handler.
// Parameters:
//   - generateService: generation pipeline service.
//   - limitChecker: daily quota checker consulted before each generation.
//   - billingService: metered usage reporting after successful generations.
//   - candidateRepo: stored candidates for trace replay.
//   - requestLogRepo: request logs for trace lookup and ownership checks.
// Returns:
//   - *MemeHandler: initialized handler.
func NewMemeHandler(
	generateService *service.GenerateService,
	limitChecker *limits.Checker,
	billingService *billing.Service,
	candidateRepo *repository.CandidateRepository,
	requestLogRepo *repository.RequestLogRepository,
) *MemeHandler {
	return &MemeHandler{
		generateService: generateService,
		limitChecker:    limitChecker,
		billingService:  billingService,
		candidateRepo:   candidateRepo,
		requestLogRepo:  requestLogRepo,
	}
}

// Generate handles POST /api/v1/memes/generate.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MemeHandler) Generate(c *gin.Context) {
	var req domain.MemeGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	if _, err := h.limitChecker.Ensure(ctx, userID, DailyMemeLimit); err != nil {
		var exceeded *limits.LimitExceededError
		if errors.As(err, &exceeded) {
			c.JSON(http.StatusPaymentRequired, exceeded.Status.ErrorDetail())
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check usage limits: " + err.Error(),
		})
		return
	}

	resp, err := h.generateService.Generate(ctx, userID, &req)
	if err != nil {
		if errors.Is(err, service.ErrNoTemplatesMatch) || errors.Is(err, service.ErrNoCandidates) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    err.Error(),
				"trace_id": resp.TraceID,
				"warnings": resp.Warnings,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Generation failed: " + err.Error(),
		})
		return
	}

	h.reportUsage(ctx, userID, len(resp.Candidates))

	c.JSON(http.StatusOK, resp)
}

// reportUsage pushes metered usage to billing after a successful generation.
// Free users have no subscription item, so those misses are expected.
func (h *MemeHandler) reportUsage(ctx context.Context, userID string, count int) {
	if h.billingService == nil || count == 0 {
		return
	}
	if _, err := h.billingService.ReportUsage(ctx, userID, count); err != nil {
		if errors.Is(err, billing.ErrNoActiveSubscription) || errors.Is(err, billing.ErrNoSubscriptionItem) {
			logger.CtxDebug(ctx, "Skipping usage report: %v", err)
			return
		}
		logger.CtxWarn(ctx, "Failed to report metered usage: user_id=%s, error=%v", userID, err)
	}
}

// GetTrace handles GET /api/v1/memes/:trace_id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MemeHandler) GetTrace(c *gin.Context) {
	traceID := c.Param("trace_id")
	ctx := c.Request.Context()

	rl, err := h.requestLogRepo.GetByTraceID(ctx, traceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Trace not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load trace: " + err.Error(),
		})
		return
	}

	if rl.UserID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Trace belongs to another user",
		})
		return
	}

	candidates, err := h.candidateRepo.ListByTrace(ctx, traceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load candidates: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, domain.MemeGenerateResponse{
		TraceID:    traceID,
		Candidates: candidates,
		Warnings:   rl.Warnings,
	})
}
