package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	keys := map[string][]byte{
		"k1": mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="),
	}
	m, err := NewManager("k1", keys)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	raw, err := m.Seal("AIza-super-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(raw) {
		t.Fatalf("expected sealed prefix, got %q", raw)
	}
	if strings.Contains(raw, "super-secret") {
		t.Fatalf("sealed value leaks plaintext: %q", raw)
	}

	out, err := m.Open(raw)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if out != "AIza-super-secret" {
		t.Fatalf("expected original string, got %q", out)
	}
}

func TestOpenPassesThroughPlaintext(t *testing.T) {
	m, err := NewManager("k1", map[string][]byte{"k1": mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	out, err := m.Open("sk-or-plain")
	if err != nil {
		t.Fatalf("open plaintext: %v", err)
	}
	if out != "sk-or-plain" {
		t.Fatalf("unexpected plaintext: %q", out)
	}
}

func TestRotationOpenOldSealNew(t *testing.T) {
	oldKey := mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	newKey := mustKey(t, "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=")

	oldManager, err := NewManager("old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatalf("old manager: %v", err)
	}
	oldSealed, err := oldManager.Seal("legacy")
	if err != nil {
		t.Fatalf("old seal: %v", err)
	}

	rotated, err := NewManager("new", map[string][]byte{"old": oldKey, "new": newKey})
	if err != nil {
		t.Fatalf("rotated manager: %v", err)
	}
	plain, err := rotated.Open(oldSealed)
	if err != nil {
		t.Fatalf("open with old key failed: %v", err)
	}
	if plain != "legacy" {
		t.Fatalf("unexpected plaintext: %q", plain)
	}

	newSealed, err := rotated.Seal(plain)
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	if _, err := oldManager.Open(newSealed); err == nil {
		t.Fatalf("old manager must not open a secret sealed with the new key")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager("", map[string][]byte{"a": make([]byte, 32)}); err == nil {
		t.Fatalf("expected error for empty current id")
	}
	if _, err := NewManager("a", map[string][]byte{"a": make([]byte, 16)}); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := NewManager("b", map[string][]byte{"a": make([]byte, 32)}); err == nil {
		t.Fatalf("expected error for missing current key")
	}
}

func mustKey(t *testing.T, b64 string) []byte {
	t.Helper()
	k, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if len(k) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(k))
	}
	return k
}
