package main

import (
	"fmt"
	"log"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/common/handlers"
	"github.com/architect/mathquest/internal/common/health"
	"github.com/architect/mathquest/internal/common/middleware"
	quizHandlers "github.com/architect/mathquest/internal/quiz/handlers"
	"github.com/architect/mathquest/internal/quiz/models"
	"github.com/architect/mathquest/pkg/config"
	"github.com/architect/mathquest/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database (SQLite for development, PostgreSQL for production)
	if err := database.InitWithType(cfg.Database.Type, cfg.Database.DSN); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	if err := migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create Gin engine
	router := gin.New()
	router.Use(gin.Recovery())

	// Apply middleware
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.ErrorHandler())

	// Health check endpoints
	checker := health.NewHealthChecker(database.DB, version)
	healthHandler := handlers.NewHealthHandler(checker)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/readiness", healthHandler.Readiness)
	router.GET("/health/liveness", healthHandler.Liveness)
	router.GET("/health/metrics", healthHandler.Metrics)

	// API v1 routes
	v1 := router.Group("/api/v1")
	quizHandlers.RegisterRoutes(v1)

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Starting MathQuest server",
		zap.String("address", address),
		zap.String("env", cfg.Server.Env),
		zap.String("db_type", cfg.Database.Type),
	)

	if err := router.Run(address); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func migrate() error {
	return database.DB.AutoMigrate(
		&database.User{},
		&database.Session{},
		&models.QuizSession{},
		&models.QuizAnswer{},
		&models.StudentProgress{},
	)
}
