package llm

import (
	"context"
	"errors"
	"fmt"

	"convo-search/internal/domain"
)

// SearchProvider responde una consulta con un resumen y sus fuentes, usando
// los turnos previos de la conversación como contexto.
type SearchProvider interface {
	Search(ctx context.Context, apiKey, query string, history []domain.Turn) (SearchResult, error)
}

// SearchResult es la respuesta cruda del proveedor.
type SearchResult struct {
	Summary string
	Sources []domain.Source
}

// ErrorKind clasifica las fallas del proveedor.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindTimeout      ErrorKind = "timeout"
	KindUpstream     ErrorKind = "upstream"
	KindMalformed    ErrorKind = "malformed"
)

// ProviderError describe una falla del proveedor sin exponer su respuesta interna.
type ProviderError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable indica si reintentar la misma solicitud puede funcionar.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUpstream:
		return true
	default:
		return false
	}
}

// AsProviderError extrae un *ProviderError de la cadena de errores.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
