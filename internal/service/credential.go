package service

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var ErrMissingCredential = errors.New("missing credential")

// Credential es la API key opaca que envía el llamador. No se valida contra el
// proveedor: una key inválida se detecta cuando el proveedor la rechaza.
type Credential struct {
	key string
}

// ValidateCredential aplica el gate de credenciales antes de tocar sesiones.
func ValidateCredential(raw string) (Credential, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return Credential{}, ErrMissingCredential
	}
	return Credential{key: key}, nil
}

// Key devuelve la key tal cual, solo para el proveedor.
func (c Credential) Key() string {
	return c.key
}

// Fingerprint identifica la credencial en logs y en el rate limiter sin exponerla.
func (c Credential) Fingerprint() string {
	if c.key == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(c.key))
	return hex.EncodeToString(sum[:8])
}

func (c Credential) String() string {
	return "credential:" + c.Fingerprint()
}
