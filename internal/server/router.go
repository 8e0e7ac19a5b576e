package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/chatstream-backend/internal/handlers"
	"github.com/yungbote/chatstream-backend/internal/middleware"
)

type RouterConfig struct {
	Env            string
	AuthHandler    *handlers.AuthHandler
	ChatHandler    *handlers.ChatHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/api/auth/register", cfg.AuthHandler.Register)
	router.POST("/api/auth/login", cfg.AuthHandler.Login)
	router.POST("/api/auth/guest", cfg.AuthHandler.Guest)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Chat
	protected.POST("/chat", cfg.ChatHandler.Post)
	protected.GET("/chat/:id", cfg.ChatHandler.Get)
	protected.GET("/chat/:id/stream", cfg.ChatHandler.Resume)
	protected.POST("/chat/:id/visibility", cfg.ChatHandler.UpdateVisibility)
	protected.DELETE("/chat/:id", cfg.ChatHandler.Delete)
	// History
	protected.GET("/history", cfg.ChatHandler.History)

	return router
}
