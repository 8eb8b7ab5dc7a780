package registry

import (
	"errors"
	"testing"

	"kangsantri/internal/providers/gemini"
	"kangsantri/internal/providers/openrouter"
	"kangsantri/internal/state"
)

func TestRegistryBuildsPerProvider(t *testing.T) {
	r := Registry{OpenRouterBaseURL: "https://default.example/v1"}

	p, err := r.Chat(state.Target{Provider: state.ProviderGemini, Credential: state.Credential{Secret: "AIza"}})
	if err != nil {
		t.Fatalf("gemini: %v", err)
	}
	if _, ok := p.(*gemini.Client); !ok {
		t.Fatalf("expected gemini client, got %T", p)
	}

	p, err = r.Chat(state.Target{Provider: state.ProviderOpenRouter, Endpoint: "https://override.example/v1"})
	if err != nil {
		t.Fatalf("openrouter: %v", err)
	}
	if _, ok := p.(*openrouter.Client); !ok {
		t.Fatalf("expected openrouter client, got %T", p)
	}
	if got := r.options(state.Target{Provider: state.ProviderOpenRouter, Endpoint: "https://override.example/v1"}).BaseURL; got != "https://override.example/v1" {
		t.Fatalf("stored endpoint must win, got %q", got)
	}
	if got := r.options(state.Target{Provider: state.ProviderOpenRouter}).BaseURL; got != "https://default.example/v1" {
		t.Fatalf("expected default base url, got %q", got)
	}

	if _, err := r.Chat(state.Target{Provider: "Bard"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestImagesOnlyFromFirstParty(t *testing.T) {
	r := Registry{}
	if _, err := r.Images(state.Target{Provider: state.ProviderGemini}); err != nil {
		t.Fatalf("gemini images: %v", err)
	}
	_, err := r.Images(state.Target{Provider: state.ProviderOpenRouter})
	if !errors.Is(err, ErrNoImageSupport) {
		t.Fatalf("expected ErrNoImageSupport, got %v", err)
	}
}
