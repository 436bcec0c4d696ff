package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// adminKeyMiddleware gates the queue-admin surface behind a shared secret
// when one is configured and the process is in production mode (spec §6
// "When an admin key is set and the process is in production mode, the
// queue-admin surface requires that key"). Outside production, or with no
// key configured, the gate is a no-op — matching local-dev ergonomics.
func adminKeyMiddleware(adminKey, nodeEnv string) gin.HandlerFunc {
	enforce := adminKey != "" && strings.EqualFold(nodeEnv, "production")
	return func(c *gin.Context) {
		if !enforce {
			c.Next()
			return
		}
		got := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorEnvelope{Error: APIError{Message: "invalid or missing admin key", Code: "unauthorized"}})
			return
		}
		c.Next()
	}
}
