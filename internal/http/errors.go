package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"convo-search/internal/llm"
	"convo-search/internal/service"
)

const (
	codeMissingCredential = "missing_credential"
	codeInvalidCredential = "invalid_credential"
	codeInvalidRequest    = "invalid_request"
	codeInvalidQuery      = "invalid_query"
	codeSessionExpired    = "session_expired"
	codeProviderError     = "provider_error"
	codeRateLimited       = "rate_limited"
	codeRequestCanceled   = "request_canceled"
	codeInternal          = "internal_error"
)

// writeError traduce los errores del motor a status HTTP. Una sesión vencida
// nunca es un 5xx: el cliente debe repetir la consulta como búsqueda nueva.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	if pe, ok := llm.AsProviderError(err); ok {
		if pe.Kind == llm.KindUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": pe.Message, "code": codeInvalidCredential})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     pe.Message,
			"code":      codeProviderError,
			"kind":      string(pe.Kind),
			"retryable": pe.Retryable(),
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrMissingCredential):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key", "code": codeMissingCredential})
	case errors.Is(err, service.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty", "code": codeInvalidQuery})
	case errors.Is(err, service.ErrSessionExpired):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired, start a new search", "code": codeSessionExpired})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("request canceled by caller", zap.Error(err))
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "request canceled", "code": codeRequestCanceled})
	default:
		logger.Error("search request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": codeInternal})
	}
}
