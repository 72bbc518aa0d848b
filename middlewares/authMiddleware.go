package middlewares

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/splitleasesharath/splitlease-sub012/utils"
)

// CorrelationIdMiddleware tags every request with a correlation id. Producers
// stamp it onto queue entries so one user action groups across entries, logs
// and alerts. A caller-supplied x-correlation-id wins; otherwise one is minted.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := strings.TrimSpace(c.Request.Header.Get("x-correlation-id"))
		if correlationId == "" {
			correlationId = uuid.NewString()
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("x-correlation-id", correlationId)
		c.Next()
	}
}

// ServiceTokenMiddleware guards the operational endpoints with a shared
// service token checked against its bcrypt hash. With OPS_API_TOKEN_HASH
// unset the guard is open, which is how local and test environments run.
func ServiceTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := strings.TrimSpace(os.Getenv("OPS_API_TOKEN_HASH"))
		if hash == "" {
			c.Next()
			return
		}

		auth := c.Request.Header.Get("Authorization")
		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		token := auth[len(bearer):]
		if err := utils.CompareToken(hash, token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(utils.SetTokenInContext(c.Request.Context(), token))
		c.Next()
	}
}
