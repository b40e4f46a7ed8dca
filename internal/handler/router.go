package handler

import (
	"github.com/finances/accounts-service/shared/metrics"
	"github.com/finances/accounts-service/shared/middleware"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries the handlers and options the router is built from.
type RouterConfig struct {
	Accounts *AccountHandler
	Health   *HealthHandler
	// JWTSecret enables bearer authentication on /api/v1 when non-empty.
	JWTSecret []byte
}

// SetupRoutes builds the gin engine serving the account API.
func SetupRoutes(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.LoggingMiddleware())
	r.Use(metrics.Middleware())

	r.GET("/health", cfg.Health.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	if len(cfg.JWTSecret) > 0 {
		api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	}

	accounts := api.Group("/accounts")
	{
		accounts.GET("", cfg.Accounts.ListAccounts)
		accounts.POST("", cfg.Accounts.CreateAccount)
		accounts.POST("/alias", cfg.Accounts.LinkAlias)
		accounts.GET("/:id", cfg.Accounts.GetAccount)
		accounts.PUT("/:id", cfg.Accounts.UpdateAccount)
		accounts.DELETE("/:id", cfg.Accounts.DeleteAccount)
	}

	return r
}
