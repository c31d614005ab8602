package service

import "convo-search/internal/domain"

// SearchResponse es la forma de la respuesta en el cable; se mantiene separada
// de domain.Turn para que el modelo interno pueda cambiar sin romper clientes.
type SearchResponse struct {
	SessionID string          `json:"sessionId"`
	Summary   string          `json:"summary"`
	Sources   []domain.Source `json:"sources"`
	Restarted bool            `json:"restarted,omitempty"`
}

// AssembleResponse arma la respuesta a partir del último turno de la sesión.
func AssembleResponse(sessionID string, latest domain.Turn) SearchResponse {
	sources := latest.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	return SearchResponse{
		SessionID: sessionID,
		Summary:   latest.Summary,
		Sources:   sources,
	}
}
