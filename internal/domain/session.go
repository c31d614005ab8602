package domain

import "time"

// Session es la conversación de búsqueda de un usuario, identificada por un id opaco.
type Session struct {
	ID             string    `json:"id"`
	History        []Turn    `json:"history"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// LatestTurn devuelve el último turno registrado.
func (s Session) LatestTurn() (Turn, bool) {
	if len(s.History) == 0 {
		return Turn{}, false
	}
	return s.History[len(s.History)-1], true
}
