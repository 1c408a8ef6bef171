package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateConnectionToken("client-42")
	if err != nil {
		t.Fatalf("GenerateConnectionToken: %v", err)
	}

	claims, err := ValidateConnectionToken(token)
	if err != nil {
		t.Fatalf("ValidateConnectionToken: %v", err)
	}
	if claims.ClientID != "client-42" {
		t.Errorf("ClientID = %q, want client-42", claims.ClientID)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "first-secret")
	token, err := GenerateConnectionToken("client-42")
	if err != nil {
		t.Fatalf("GenerateConnectionToken: %v", err)
	}

	t.Setenv("JWT_SECRET", "other-secret")
	if _, err := ValidateConnectionToken(token); err == nil {
		t.Fatal("token signed with a different secret must be rejected")
	}
}

func TestTokenOperationsRequireSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if Enabled() {
		t.Error("Enabled must be false without JWT_SECRET")
	}
	if _, err := GenerateConnectionToken("client-42"); err == nil {
		t.Error("generation without secret must fail")
	}
	if _, err := ValidateConnectionToken("whatever"); err == nil {
		t.Error("validation without secret must fail")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	claims := &ConnectionClaims{
		ClientID: "client-42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ValidateConnectionToken(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := ValidateConnectionToken("not-a-token"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
}
