package api

import "time"

// AuthRequest is the payload for requesting a websocket connection token.
type AuthRequest struct {
	ClientID string `json:"client_id" validate:"required"`
}

// AuthResponse carries the issued connection token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// StatusResponse mirrors hub state over REST.
type StatusResponse struct {
	Status           string `json:"status"`
	ConnectedClients int    `json:"connected_clients"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
