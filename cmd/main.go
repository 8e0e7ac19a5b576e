package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/chatstream-backend/internal/config"
	"github.com/yungbote/chatstream-backend/internal/db"
	"github.com/yungbote/chatstream-backend/internal/handlers"
	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/middleware"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/server"
	"github.com/yungbote/chatstream-backend/internal/services"
	"github.com/yungbote/chatstream-backend/internal/stream"
	"github.com/yungbote/chatstream-backend/internal/tools"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	chatRepo := repos.NewChatRepo(thePG, log)
	messageRepo := repos.NewMessageRepo(thePG, log)
	streamRepo := repos.NewStreamRepo(thePG, log)
	documentRepo := repos.NewDocumentRepo(thePG, log)

	// Model backend
	modelClient, err := services.NewOpenAIClient(log, cfg.OpenAI)
	if err != nil {
		log.Fatal("Failed to init model client", "error", err)
	}

	// Stream registry: durable redis relay when configured, pass-through
	// otherwise.
	var registry stream.Registry
	if cfg.Stream.RedisAddr != "" {
		registry, err = stream.NewRedisRegistry(log, streamRepo, cfg.Stream.RedisAddr, cfg.Stream.KeyPrefix, cfg.Stream.Retention.Duration, cfg.Generation.Timeout.Duration)
		if err != nil {
			log.Warn("Redis stream relay unavailable, falling back to pass-through", "error", err)
			registry = stream.NewPassThroughRegistry(log, streamRepo, cfg.Generation.Timeout.Duration)
		}
	} else {
		registry = stream.NewPassThroughRegistry(log, streamRepo, cfg.Generation.Timeout.Duration)
	}
	defer registry.Close()

	// Tools
	toolModel, _ := cfg.ModelBySelector("chat-model")
	toolRegistry := tools.NewRegistry(
		tools.NewWeatherTool(log),
		tools.NewCreateDocumentTool(log, documentRepo, modelClient, toolModel.Model),
		tools.NewUpdateDocumentTool(log, documentRepo, modelClient, toolModel.Model),
		tools.NewRequestSuggestionsTool(log, documentRepo, modelClient, toolModel.Model),
	)

	// Services
	log.Info("Setting up Services from main...")
	authService := services.NewAuthService(thePG, log, userRepo, cfg.JWTSecret, cfg.AccessTTL.Duration)
	chatService := services.NewChatService(log, thePG, chatRepo, messageRepo, streamRepo, documentRepo)
	quotaService := services.NewQuotaService(log, messageRepo, cfg.Quota)
	generationService := services.NewGenerationService(log, modelClient, toolRegistry, cfg.Generation.MaxSteps)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	chatHandler := handlers.NewChatHandler(log, cfg, chatService, quotaService, generationService, registry)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	router := server.NewRouter(server.RouterConfig{
		Env:            cfg.Env,
		AuthHandler:    authHandler,
		ChatHandler:    chatHandler,
		AuthMiddleware: authMiddleware,
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Forced shutdown", "error", err)
	}
	log.Info("Server exited")
}
