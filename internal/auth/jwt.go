// Package auth issues and validates websocket connection tokens.
package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL bounds how long a connection token stays usable.
const tokenTTL = 24 * time.Hour

// ErrNoSecret is returned when token operations run without JWT_SECRET set.
var ErrNoSecret = errors.New("JWT_SECRET is not configured")

// ConnectionClaims identify one client connection.
type ConnectionClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

func secret() ([]byte, error) {
	s := os.Getenv("JWT_SECRET")
	if s == "" {
		return nil, ErrNoSecret
	}
	return []byte(s), nil
}

// Enabled reports whether token auth is configured. Without a secret the
// server falls back to accepting a plain client_id query parameter.
func Enabled() bool {
	return os.Getenv("JWT_SECRET") != ""
}

// GenerateConnectionToken issues a signed token for a client ID.
func GenerateConnectionToken(clientID string) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}

	claims := &ConnectionClaims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ValidateConnectionToken parses and verifies a token, returning its claims.
func ValidateConnectionToken(tokenString string) (*ConnectionClaims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &ConnectionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ConnectionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.ClientID == "" {
		return nil, fmt.Errorf("token missing client_id claim")
	}
	return claims, nil
}
