package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kangsantri/internal/providers"
)

func float(v float64) *float64 { return &v }
func integer(v int) *int       { return &v }

func TestBuildGenerateRequest(t *testing.T) {
	got := buildGenerateRequest(providers.ChatRequest{
		Model:        "gemini-pro",
		SystemPrompt: "Be kind",
		Prompt:       "what is in this picture?",
		History: []providers.Turn{
			{Role: providers.RoleUser, Text: "hi"},
			{Role: providers.RoleAssistant, Text: "hello"},
		},
		Temperature: float(0.5),
		MaxTokens:   integer(256),
		Image:       &providers.Image{MIMEType: "image/png", Data: "iVBORw0KGgo="},
	})

	if len(got.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(got.Contents))
	}
	if got.Contents[1].Role != "model" {
		t.Fatalf("assistant turn must map to model, got %q", got.Contents[1].Role)
	}
	last := got.Contents[2]
	if len(last.Parts) != 2 || last.Parts[0].InlineData == nil || last.Parts[1].Text != "what is in this picture?" {
		t.Fatalf("image must precede prompt on current turn: %+v", last.Parts)
	}
	if got.Contents[0].Parts[0].InlineData != nil {
		t.Fatalf("history must stay text only")
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "Be kind" {
		t.Fatalf("missing system instruction: %+v", got.SystemInstruction)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.TopP != nil || *got.GenerationConfig.MaxOutputTokens != 256 {
		t.Fatalf("unexpected generation config: %+v", got.GenerationConfig)
	}

	bare := buildGenerateRequest(providers.ChatRequest{Prompt: "x"})
	if bare.SystemInstruction != nil || bare.GenerationConfig != nil {
		t.Fatalf("empty optional fields must be omitted: %+v", bare)
	}
}

func TestChatParsesTextAndCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-pro:generateContent" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "AIza-test" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Waalaikumsalam. "},{"text":"Ada yang bisa dibantu?"}]},
			"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://example.org/a","title":"A"}},{"retrievedContext":{}}]}}]}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "AIza-test"})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{Model: "gemini-pro", Prompt: "salam"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "Waalaikumsalam. Ada yang bisa dibantu?" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].URI != "https://example.org/a" {
		t.Fatalf("unexpected citations %+v", resp.Citations)
	}
}

func TestChatMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid key", 400, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, providers.ErrInvalidKey},
		{"quota", 429, `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`, providers.ErrQuotaExceeded},
		{"model", 404, `{"error":{"code":404,"message":"models/gemini-x is not found for API version v1beta","status":"NOT_FOUND"}}`, providers.ErrModelNotFound},
		{"payload", 400, `{"error":{"message":"Request payload size exceeds the limit: 20971520 bytes."}}`, providers.ErrPayloadTooLarge},
		{"billing", 403, `{"error":{"message":"This API method requires billing to be enabled."}}`, providers.ErrBilling},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Chat(context.Background(), providers.ChatRequest{Model: "gemini-x", Prompt: "p"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var apiErr *providers.APIError
			if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
				t.Fatalf("expected APIError with status %d, got %#v", tc.status, err)
			}
		})
	}
}

func TestChatRejectsEmptyKeyBeforeNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Chat(context.Background(), providers.ChatRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, providers.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	if called {
		t.Fatalf("no request must be sent without a key")
	}
}

func TestGenerateImagesClampsCount(t *testing.T) {
	var sampleCount float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":predict") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var payload struct {
			Parameters map[string]any `json:"parameters"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		sampleCount, _ = payload.Parameters["sampleCount"].(float64)
		_, _ = io.WriteString(w, `{"predictions":[{"bytesBase64Encoded":"/9j/AAA","mimeType":"image/jpeg"},{"bytesBase64Encoded":"/9j/BBB"}]}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	images, err := c.GenerateImages(context.Background(), providers.ImageRequest{Model: "imagen-3.0-generate-002", Prompt: "masjid at dawn", Count: 9})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if sampleCount != 4 {
		t.Fatalf("expected clamped count 4, got %v", sampleCount)
	}
	if len(images) != 2 || images[0] != "/9j/AAA" {
		t.Fatalf("unexpected images %v", images)
	}
}
