// README: Firebase ID-token auth for operator endpoints.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"novobot/internal/infra"
)

const (
	ctxUID   = "caller_uid"
	ctxRole  = "caller_role"
	ctxEmail = "caller_email"
)

// Auth verifies the Bearer ID token and stores the operator's uid, email and role.
func Auth(verifier infra.OperatorVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		op, err := verifier.VerifyOperator(c.Request.Context(), strings.TrimSpace(raw))
		if errors.Is(err, infra.ErrTokenRevoked) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, op.UID)
		c.Set(ctxEmail, op.Email)
		c.Set(ctxRole, op.Role)
		c.Next()
	}
}

// RequireRole lets through callers whose role claim is one of roles. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerEmail(c *gin.Context) string {
	return c.GetString(ctxEmail)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
