package router

import (
	"github.com/gin-gonic/gin"

	"github.com/writerlane/agreements-backend/internal/config"
	"github.com/writerlane/agreements-backend/internal/http/handlers"
	"github.com/writerlane/agreements-backend/internal/http/middleware"
	"github.com/writerlane/agreements-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	agreementHandler *handlers.AgreementHandler,
	paymentHandler *handlers.PaymentHandler,
	financialsHandler *handlers.FinancialsHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	protectedAuth := api.Group("/auth")
	protectedAuth.Use(middleware.AuthMiddleware(tokenManager))
	{
		protectedAuth.POST("/logout", authHandler.Logout)
	}

	// Callback'и шлюзов приходят без пользовательского токена,
	// rate limit защищает от мусорного трафика.
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		webhooks.POST("/payments", paymentHandler.GatewayCallback)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/agreements", agreementHandler.Create)
		protected.GET("/agreements", agreementHandler.List)
		protected.GET("/agreements/:id", middleware.UUIDValidator("id"), agreementHandler.Get)
		protected.POST("/agreements/:id/accept", middleware.UUIDValidator("id"), agreementHandler.Accept)
		protected.POST("/agreements/:id/complete", middleware.UUIDValidator("id"), agreementHandler.Complete)
		protected.POST("/agreements/:id/dispute", middleware.UUIDValidator("id"), agreementHandler.Dispute)
		protected.POST("/agreements/:id/cancel", middleware.UUIDValidator("id"), agreementHandler.Cancel)

		protected.GET("/financials", financialsHandler.Get)
		protected.GET("/financials/last-known", financialsHandler.LastKnownSpend)

		protected.GET("/notifications", notificationHandler.List)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	}

	// Токен проверяется внутри хэндлера, браузерный WebSocket
	// не умеет Authorization заголовок.
	api.GET("/ws", wsHandler.Handle)

	return r
}
