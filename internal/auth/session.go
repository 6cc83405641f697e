// Package auth - session.go handles session token creation, signing, and
// verification using a shared secret, including lazy secret initialization
// and claims parsing.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// sessionSecret holds the validated session signing secret
	sessionSecret     string
	sessionSecretOnce sync.Once
	sessionSecretErr  error
)

// Claims represents the session token claims structure
type Claims struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Agency string `json:"agency"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the identity carried by the claims.
func (c *Claims) Identity() Identity {
	return Identity{Name: c.Name, Email: c.Email, Agency: c.Agency, Role: c.Role}
}

// isDevMode checks if we're in development mode (reads the env directly to
// avoid importing config)
func isDevMode() bool {
	devMode := os.Getenv("JWP_SERVER_DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")

	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less secure but functional secret
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateSessionSecret checks that the session secret is properly configured.
// In production, this will fail if JWP_SESSION_SECRET is not set.
// In dev mode, it will generate a random secret and log a warning.
// Call this at application startup.
func ValidateSessionSecret() error {
	sessionSecretOnce.Do(func() {
		secret := os.Getenv("JWP_SESSION_SECRET")

		if secret == "" {
			if isDevMode() {
				// In dev mode, generate a random secret and warn
				sessionSecret = generateRandomSecret()
				slog.Warn("JWP_SESSION_SECRET not set, using auto-generated secret for development")
				slog.Warn("sessions will not persist across restarts; set JWP_SESSION_SECRET for persistent sessions")
			} else {
				// In production, fail fast
				sessionSecretErr = errors.New("JWP_SESSION_SECRET environment variable is required in production. " +
					"Generate a secure secret with: openssl rand -hex 32")
			}
			return
		}

		// Validate secret length (minimum 32 characters recommended)
		if len(secret) < 32 {
			slog.Warn("JWP_SESSION_SECRET is shorter than the recommended 32 characters")
		}

		sessionSecret = secret
	})

	return sessionSecretErr
}

// GetSessionSecret retrieves the validated session secret.
// Panics if ValidateSessionSecret() hasn't been called or failed.
func GetSessionSecret() string {
	if sessionSecret == "" {
		// If ValidateSessionSecret wasn't called, try to validate now
		if err := ValidateSessionSecret(); err != nil {
			panic(err)
		}
	}
	return sessionSecret
}

// GenerateSessionToken creates a signed session token for an authenticated
// user
func GenerateSessionToken(id Identity, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 12 * time.Hour // Default session length
	}

	claims := &Claims{
		Name:   id.Name,
		Email:  id.Email,
		Agency: id.Agency,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "jwp-tracker",
			Subject:   id.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	secret := GetSessionSecret()

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateSessionToken parses and validates a session token
func ValidateSessionToken(tokenString string) (*Claims, error) {
	secret := GetSessionSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	if !claims.Role.Valid() {
		return nil, fmt.Errorf("unknown role in token: %s", claims.Role)
	}

	return claims, nil
}
