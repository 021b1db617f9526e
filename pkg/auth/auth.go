// Package auth issues and validates the JWT session tokens of the
// websocket terminal, and gates connections behind an optional bcrypt
// password hash from the configuration.
package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultJWTSecret = "fallback_secret_change_in_production"

// getJWTSecret prefers the environment over the configuration file so
// deployments never ship the secret in settings.cfg.
func getJWTSecret() string {
	if envSecret := os.Getenv("RETROBASIC_JWT_SECRET"); envSecret != "" {
		return envSecret
	}
	secret := configuration.GetString("Server", "jwt_secret", defaultJWTSecret)
	if secret == defaultJWTSecret {
		logger.Warn(logger.AreaAuth, "using fallback JWT secret - set RETROBASIC_JWT_SECRET for production")
	}
	return secret
}

func tokenExpiration() time.Duration {
	hours := configuration.GetInt("Server", "token_expiration_hours", 24)
	return time.Duration(hours) * time.Hour
}

// SessionClaims carries the REPL session identity inside the token.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// GenerateSessionToken signs a token for a session id.
func GenerateSessionToken(sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "retrobasic",
			Subject:   "repl-session",
			ID:        sessionID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("could not sign session token: %w", err)
	}
	logger.Info(logger.AreaAuth, "session token issued for %s", sessionID)
	return signed, nil
}

// ValidateSessionToken checks a presented token and returns its
// session id.
func ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(getJWTSecret()), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid session token")
	}
	return claims.SessionID, nil
}

// CheckPassword verifies a plain password against the configured
// bcrypt hash. An empty configuration means the server is open.
func CheckPassword(plain string) bool {
	hash := configuration.GetString("Server", "password_hash", "")
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashPassword produces a bcrypt hash for the configuration file.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
