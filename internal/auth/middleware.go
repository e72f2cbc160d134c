package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// submitterKey is the gin context key the verified submitter identity is
// stored under.
const submitterKey = "auth.submitter"

// Middleware returns a Gin middleware that requires a valid bearer token
// issued by i. On success the submitter identity is stored in the request
// context for handlers to read via Submitter.
func Middleware(i *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		subject, err := i.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(submitterKey, subject)
		c.Next()
	}
}

// Submitter returns the verified submitter identity stored by Middleware,
// or "" when the request was not authenticated.
func Submitter(c *gin.Context) string {
	v, ok := c.Get(submitterKey)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
