package auth

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lending/internal/identity"
)

const callerKey = "lending.caller"

// Middleware resolves the bearer token of every request into an identity.Caller stored on the
// gin context. Requests without an Authorization header continue as identity.Anonymous; a
// malformed or invalid token is rejected with 401.
func Middleware(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(callerKey, identity.Anonymous)
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header must be 'Bearer <token>'"})
			return
		}

		caller, err := issuer.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			log.Printf("[WARN] auth: rejected token from %s: %v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireAuthenticated rejects anonymous callers with 401 before the handler runs.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerFrom(c).IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// CallerFrom returns the identity resolved by Middleware, or Anonymous when none was set.
func CallerFrom(c *gin.Context) identity.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(identity.Caller); ok {
			return caller
		}
	}
	return identity.Anonymous
}
