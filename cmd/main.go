package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/adapters"
	"github.com/satriahrh/lisan/server/adapters/asr"
	mongodb "github.com/satriahrh/lisan/server/adapters/mongo"
	"github.com/satriahrh/lisan/server/domain/repositories"
	"github.com/satriahrh/lisan/server/internal/api"
	"github.com/satriahrh/lisan/server/internal/websocket"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Speech recognition: Google Cloud when credentials are present,
	// otherwise the mock for local development.
	var recognizer repositories.SpeechRecognizer
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		google, err := asr.NewGoogleRecognizer(ctx, logger)
		if err != nil {
			logger.Fatal("Failed to initialize speech recognizer", zap.Error(err))
		}
		defer google.Close()
		recognizer = google
	} else {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, using mock recognizer")
		recognizer = asr.NewMockRecognizer(logger)
	}

	// Session audit storage: MongoDB when configured, in-memory otherwise.
	var sessions repositories.SessionRecorder
	if os.Getenv("MONGODB_URI") != "" {
		mongoClient, err := mongodb.NewClient(os.Getenv("MONGODB_URI"), os.Getenv("MONGODB_DATABASE"), logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongoClient.Close(shutdownCtx)
		}()
		sessions = mongodb.NewSessionRecorder(mongoClient.Database)
	} else {
		logger.Warn("MONGODB_URI not set, session records are kept in memory")
		sessions = adapters.NewMemorySessionRecorder()
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub(websocket.Config{
		Recognizer:   recognizer,
		Sessions:     sessions,
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
	}, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, logger)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
