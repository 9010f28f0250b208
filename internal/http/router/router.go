package router

import (
	"github.com/gin-gonic/gin"

	"github.com/adaptive-escrow/escrow-backend/internal/config"
	"github.com/adaptive-escrow/escrow-backend/internal/http/handlers"
	"github.com/adaptive-escrow/escrow-backend/internal/http/middleware"
)

func SetupRouter(
	cfg *config.Config,
	escrowHandler *handlers.EscrowHandler,
	aiHandler *handlers.AIHandler,
	userHandler *handlers.UserHandler,
	analyticsHandler *handlers.AnalyticsHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))

	api.GET("/ws", wsHandler.Connect)

	escrowGroup := api.Group("/escrow")
	{
		escrowGroup.POST("/create", escrowHandler.Create)
		escrowGroup.GET("/user/:wallet", middleware.WalletValidator("wallet"), escrowHandler.ListByUser)

		escrowByID := escrowGroup.Group("/:id")
		escrowByID.Use(middleware.UUIDValidator("id"))
		{
			escrowByID.GET("", escrowHandler.Get)
			escrowByID.POST("/deliver", escrowHandler.Deliver)
			escrowByID.POST("/release", escrowHandler.Release)
			escrowByID.PUT("/rules", escrowHandler.UpdateRules)
		}
	}

	aiGroup := api.Group("/ai")
	{
		aiGroup.GET("/suggest/user/:wallet", middleware.WalletValidator("wallet"), aiHandler.Suggest)
		aiGroup.GET("/suggestions/:wallet", middleware.WalletValidator("wallet"), aiHandler.ListByUser)

		suggestByID := aiGroup.Group("/suggest/:id")
		suggestByID.Use(middleware.UUIDValidator("id"))
		{
			suggestByID.POST("", aiHandler.CreateForEscrow)
			suggestByID.POST("/approve", aiHandler.Approve)
			suggestByID.POST("/reject", aiHandler.Reject)
		}
	}

	usersGroup := api.Group("/users")
	{
		usersGroup.GET("/top/freelancers", userHandler.TopFreelancers)
		usersGroup.GET("/search/freelancers", userHandler.SearchFreelancers)

		userByWallet := usersGroup.Group("/:wallet")
		userByWallet.Use(middleware.WalletValidator("wallet"))
		{
			userByWallet.GET("", userHandler.Get)
			userByWallet.PUT("", userHandler.Update)
			userByWallet.GET("/performance", userHandler.Performance)
			userByWallet.POST("/update-stats", userHandler.RefreshStats)
		}
	}

	analyticsGroup := api.Group("/analytics")
	{
		analyticsGroup.GET("/platform", analyticsHandler.Platform)
		analyticsGroup.GET("/user/:wallet", middleware.WalletValidator("wallet"), analyticsHandler.User)
		analyticsGroup.GET("/top-performers", analyticsHandler.TopPerformers)
	}

	return r
}
