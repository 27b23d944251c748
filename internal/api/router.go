package api

import (
	"github.com/gin-gonic/gin"

	"github.com/memelab/memeforge/internal/api/handler"
	"github.com/memelab/memeforge/internal/api/middleware"
	"github.com/memelab/memeforge/internal/auth"
	"github.com/memelab/memeforge/internal/billing"
	"github.com/memelab/memeforge/internal/limits"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
	"github.com/memelab/memeforge/internal/service"
)

// Dependencies carries the services and repositories the router wires into
// handlers.
type Dependencies struct {
	GenerateService *service.GenerateService
	ReferralService *service.ReferralService
	BillingService  *billing.Service
	LimitChecker    *limits.Checker
	TokenVerifier   *auth.TokenVerifier
	APIKeyService   *auth.APIKeyService
	TemplateRepo    *repository.TemplateRepository
	CandidateRepo   *repository.CandidateRepository
	RequestLogRepo  *repository.RequestLogRepository
	ProfileRepo     *repository.ProfileRepository
	Logger          *logger.Logger

	Mode       string
	AdminToken string
	CORS       middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Dependencies) *gin.Engine {
	// Set Gin mode
	switch deps.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	memeHandler := handler.NewMemeHandler(deps.GenerateService, deps.LimitChecker, deps.BillingService, deps.CandidateRepo, deps.RequestLogRepo)
	templateHandler := handler.NewTemplateHandler(deps.TemplateRepo)
	keyHandler := handler.NewKeyHandler(deps.APIKeyService)
	limitHandler := handler.NewLimitHandler(deps.LimitChecker)
	referralHandler := handler.NewReferralHandler(deps.ReferralService)
	billingHandler := handler.NewBillingHandler(deps.BillingService)
	adminHandler := handler.NewAdminHandler(deps.TemplateRepo, deps.CandidateRepo, deps.RequestLogRepo)

	authRequired := middleware.AuthMiddleware(deps.TokenVerifier, deps.APIKeyService, deps.ProfileRepo)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", healthHandler.Ping)

		// Stripe authenticates the webhook with its signature header, so it
		// stays outside the auth middleware.
		v1.POST("/billing/webhook", billingHandler.Webhook)

		authed := v1.Group("", authRequired)
		{
			// Memes
			authed.POST("/memes/generate", memeHandler.Generate)
			authed.GET("/memes/:trace_id", memeHandler.GetTrace)

			// Templates
			authed.GET("/templates", templateHandler.List)
			authed.GET("/templates/:id", templateHandler.Get)

			// Limits
			authed.GET("/limits", limitHandler.Get)

			// API keys
			authed.POST("/keys", keyHandler.Create)
			authed.GET("/keys", keyHandler.List)
			authed.DELETE("/keys/:id", keyHandler.Revoke)

			// Referrals
			authed.POST("/referrals/apply", referralHandler.Apply)
			authed.GET("/referrals/code", referralHandler.Code)

			// Billing
			authed.POST("/billing/checkout", billingHandler.Checkout)
			authed.GET("/billing/subscription", billingHandler.Subscription)
		}

		// Admin
		admin := v1.Group("/admin", middleware.AdminMiddleware(deps.AdminToken))
		{
			admin.GET("/stats", adminHandler.Stats)
		}
	}

	return r
}
