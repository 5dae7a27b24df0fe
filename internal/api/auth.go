package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/solana-sniper-bot/autotrader/internal/config"
)

const (
	userIDKey = "user_id"
	// devUserHeader names the caller when authentication is disabled.
	devUserHeader = "X-User-ID"
)

// IssueToken signs an HS256 token whose subject is userID.
func IssueToken(cfg config.SecurityConfig, userID string, now time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	ttl := cfg.JWTTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    cfg.JWTIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a token and returns its subject.
func ParseToken(cfg config.SecurityConfig, raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// authMiddleware resolves the caller's user ID. With auth enabled it requires
// a bearer token; the websocket route may pass it as ?token= instead.
func authMiddleware(cfg config.SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AuthEnabled {
			userID := strings.TrimSpace(c.GetHeader(devUserHeader))
			if userID == "" {
				userID = c.Query("user_id")
			}
			if userID == "" {
				abortError(c, http.StatusUnauthorized, "missing "+devUserHeader+" header")
				return
			}
			c.Set(userIDKey, userID)
			c.Next()
			return
		}

		raw := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		} else if t := c.Query("token"); t != "" {
			raw = t
		}
		if raw == "" {
			abortError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := ParseToken(cfg, raw)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// requireAdmin limits a route to the users listed in cfg.AdminUsers.
func requireAdmin(cfg config.SecurityConfig) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(cfg.AdminUsers))
	for _, u := range cfg.AdminUsers {
		if u = strings.TrimSpace(u); u != "" {
			admins[u] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		if _, ok := admins[currentUser(c)]; !ok {
			abortError(c, http.StatusForbidden, "admin access required")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
