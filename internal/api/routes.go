// Package api wires the HTTP surface: health, auth, status, and the
// websocket upgrade endpoint.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lisan/server/internal/auth"
	"github.com/satriahrh/lisan/server/internal/websocket"
)

// InitRoutes initializes all API routes.
func InitRoutes(e *echo.Echo, hub *websocket.Hub, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "lisan-server",
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/auth", func(c echo.Context) error {
		return issueToken(c, logger)
	})

	v1.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, StatusResponse{
			Status:           "ok",
			ConnectedClients: hub.ClientCount(),
		})
	})

	e.GET("/ws", func(c echo.Context) error {
		return websocketConnect(hub, c, logger)
	})
}

// issueToken exchanges a client ID for a signed connection token.
func issueToken(c echo.Context, logger *zap.Logger) error {
	if !auth.Enabled() {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "auth_disabled",
			Message: "Token auth is not configured; connect with a client_id query parameter",
		})
	}

	var req AuthRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	token, err := auth.GenerateConnectionToken(clientID)
	if err != nil {
		logger.Error("Failed to generate connection token",
			zap.String("client_id", clientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate connection token",
		})
	}

	logger.Info("Connection token issued", zap.String("client_id", clientID))

	return c.JSON(http.StatusOK, AuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		ClientID:  clientID,
	})
}

// websocketConnect authenticates the upgrade request and hands the connection
// to the hub. With token auth disabled, a plain client_id query parameter is
// accepted for development use.
func websocketConnect(hub *websocket.Hub, c echo.Context, logger *zap.Logger) error {
	var clientID string

	if auth.Enabled() {
		token := c.QueryParam("token")
		if token == "" {
			authHeader := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if token == "" {
			logger.Warn("WebSocket connection rejected: missing token")
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "Connection token is required",
			})
		}

		claims, err := auth.ValidateConnectionToken(token)
		if err != nil {
			logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired connection token",
			})
		}
		clientID = claims.ClientID
	} else {
		clientID = c.QueryParam("client_id")
		if clientID == "" {
			clientID = uuid.NewString()
		}
	}

	logger.Info("WebSocket connection accepted", zap.String("client_id", clientID))
	return websocket.HandleWebSocket(hub, c, clientID, logger)
}
