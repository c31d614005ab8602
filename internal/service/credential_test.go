package service

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCredential(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n"} {
		if _, err := ValidateCredential(raw); !errors.Is(err, ErrMissingCredential) {
			t.Fatalf("expected ErrMissingCredential for %q, got %v", raw, err)
		}
	}

	cred, err := ValidateCredential("  AIza-key  ")
	if err != nil {
		t.Fatalf("expected valid credential, got %v", err)
	}
	if cred.Key() != "AIza-key" {
		t.Fatalf("expected trimmed key, got %q", cred.Key())
	}
}

func TestCredentialFingerprint(t *testing.T) {
	a, _ := ValidateCredential("key-a")
	b, _ := ValidateCredential("key-b")
	a2, _ := ValidateCredential("key-a")

	if a.Fingerprint() != a2.Fingerprint() {
		t.Fatalf("fingerprint must be stable")
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("different keys must not share a fingerprint")
	}
	if len(a.Fingerprint()) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a.Fingerprint())
	}
	if strings.Contains(a.String(), "key-a") {
		t.Fatalf("String must not leak the raw key: %s", a.String())
	}
	if (Credential{}).Fingerprint() != "" {
		t.Fatalf("zero credential must have empty fingerprint")
	}
}
