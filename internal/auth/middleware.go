package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth.claims"

// Middleware rejects requests without a valid bearer token. With no secret configured
// it lets every request through and handlers fall back to the actor named in the body.
func Middleware(j JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !j.Enabled() {
			c.Next()
			return
		}
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
			return
		}
		claims, err := j.Verify(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// Actor is the token subject when present, otherwise fallback.
func Actor(c *gin.Context, fallback string) string {
	if claims, ok := ClaimsFrom(c); ok {
		return claims.Subject
	}
	return strings.TrimSpace(fallback)
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
