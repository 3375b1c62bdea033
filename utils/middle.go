package utils

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionValidator checks that the session behind a verified token is still alive.
type SessionValidator interface {
	ValidateSession(ctx context.Context, claims *Claims) error
}

const (
	CtxUserID       = "user_id"
	CtxUsername     = "username"
	CtxSessionToken = "session_token"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenParts := strings.SplitN(authHeader, " ", 2)
	if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
		return "", true
	}
	return strings.TrimSpace(tokenParts[1]), true
}

func authenticate(c *gin.Context, tokens *TokenManager, sessions SessionValidator, token string) bool {
	claims, err := tokens.VerifyToken(token)
	if err != nil {
		return false
	}
	if sessions != nil {
		if err := sessions.ValidateSession(c.Request.Context(), claims); err != nil {
			return false
		}
	}
	c.Set(CtxUsername, claims.Username)
	c.Set(CtxUserID, claims.UserId)
	c.Set(CtxSessionToken, claims.SessionToken)
	return true
}

// AuthMiddleware verifies JWT and sets user context.
func AuthMiddleware(tokens *TokenManager, sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if !present || token == "" || !authenticate(c, tokens, sessions, token) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware lets anonymous requests through but rejects bad credentials.
func OptionalAuthMiddleware(tokens *TokenManager, sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearerToken(c)
		if !present {
			c.Next()
			return
		}
		if token == "" || !authenticate(c, tokens, sessions, token) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated user ID, if any.
func CurrentUserID(c *gin.Context) (uint64, bool) {
	value, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok
}
