package domain

import "time"

// Turn es un intercambio consulta/resumen/fuentes dentro de una sesión.
type Turn struct {
	Query     string    `json:"query"`
	Summary   string    `json:"summary"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"created_at"`
}

// Source es una cita devuelta por el proveedor; se transmite sin modificar.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Clone copia el turno para que el llamador no comparta el slice de fuentes.
func (t Turn) Clone() Turn {
	if t.Sources != nil {
		t.Sources = append([]Source(nil), t.Sources...)
	}
	return t
}
