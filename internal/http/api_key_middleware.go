package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"convo-search/internal/service"
)

const (
	apiKeyHeader  = "X-API-Key"
	credentialKey = "credential"
)

// APIKeyMiddleware aplica el gate de credenciales y el rate limit por credencial
// antes de que el request llegue al motor de sesiones.
func APIKeyMiddleware(limiter service.SearchRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, err := service.ValidateCredential(c.GetHeader(apiKeyHeader))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key", "code": codeMissingCredential})
			c.Abort()
			return
		}

		if limiter != nil && !limiter.Allow(cred.Fingerprint()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many searches, slow down", "code": codeRateLimited})
			c.Abort()
			return
		}

		c.Set(credentialKey, cred)
		c.Next()
	}
}

// GetCredential obtiene la credencial validada desde el contexto.
func GetCredential(c *gin.Context) (service.Credential, bool) {
	val, ok := c.Get(credentialKey)
	if !ok {
		return service.Credential{}, false
	}
	cred, ok := val.(service.Credential)
	return cred, ok
}
