package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return signed
}

func TestParseToken(t *testing.T) {
	const secret = "test-secret"

	valid := signToken(t, secret, jwt.MapClaims{
		"sub":      "user-1",
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	userID, username, err := ParseToken(valid, []byte(secret))
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if userID != "user-1" || username != "alice" {
		t.Fatalf("wrong claims: %s / %s", userID, username)
	}

	expired := signToken(t, secret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, _, err := ParseToken(expired, []byte(secret)); err == nil {
		t.Fatalf("expired token accepted")
	}

	wrongKey := signToken(t, "other-secret", jwt.MapClaims{"sub": "user-1"})
	if _, _, err := ParseToken(wrongKey, []byte(secret)); err == nil {
		t.Fatalf("token with wrong signature accepted")
	}

	noSubject := signToken(t, secret, jwt.MapClaims{"username": "ghost"})
	if _, _, err := ParseToken(noSubject, []byte(secret)); err == nil {
		t.Fatalf("token without subject accepted")
	}
}
