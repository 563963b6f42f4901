// Package auth extracts the verified player identity from bearer tokens.
// Tokens carry a playerId claim signed with HS256; downstream code trusts
// the extracted identifier unconditionally.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gamesync-backend/internal/config"
	"github.com/gamesync-backend/internal/domain"
)

type contextKey struct{}

var playerKey contextKey

// playerClaims is the internal claims type used for JWT parsing
type playerClaims struct {
	jwt.RegisteredClaims
	PlayerID int64 `json:"playerId"`
}

// Verifier validates bearer tokens and issues new ones
type Verifier struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewVerifier creates a token verifier from the auth configuration
func NewVerifier(cfg *config.AuthConfig) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: cfg.TokenTTL,
	}
}

// IssueToken signs a bearer token for a player
func (v *Verifier) IssueToken(playerID int64) (string, error) {
	now := time.Now()
	claims := playerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenTTL)),
		},
		PlayerID: playerID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses a bearer token and returns the player identifier
func (v *Verifier) VerifyToken(tokenString string) (int64, error) {
	var claims playerClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, domain.ErrUnauthorized
	}
	if claims.PlayerID <= 0 {
		return 0, domain.ErrUnauthorized
	}
	return claims.PlayerID, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// player identifier in the request context
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			unauthorized(w)
			return
		}

		playerID, err := v.VerifyToken(strings.TrimSpace(header[len(prefix):]))
		if err != nil {
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), playerKey, playerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlayerFromContext returns the authenticated player identifier
func PlayerFromContext(ctx context.Context) (int64, bool) {
	playerID, ok := ctx.Value(playerKey).(int64)
	return playerID, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"code":"unauthorized","error":"missing or invalid credentials"}`))
}
