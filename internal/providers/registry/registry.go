package registry

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"kangsantri/internal/providers"
	"kangsantri/internal/providers/gemini"
	"kangsantri/internal/providers/openrouter"
	"kangsantri/internal/state"
)

var ErrNoImageSupport = errors.New("provider does not generate images")

type BuildOptions struct {
	Provider   state.Provider
	APIKey     string
	BaseURL    string
	SiteURL    string
	SiteName   string
	HTTPClient *http.Client
}

func Build(opts BuildOptions) (providers.Provider, error) {
	switch opts.Provider {
	case state.ProviderGemini:
		return gemini.New(gemini.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	case state.ProviderOpenRouter:
		return openrouter.New(openrouter.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			SiteURL:    opts.SiteURL,
			SiteName:   opts.SiteName,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q", opts.Provider)
	}
}

func BuildImageGenerator(opts BuildOptions) (providers.ImageGenerator, error) {
	if opts.Provider != state.ProviderGemini {
		return nil, fmt.Errorf("%s: %w", opts.Provider, ErrNoImageSupport)
	}
	return gemini.New(gemini.Config{
		BaseURL:    opts.BaseURL,
		APIKey:     opts.APIKey,
		HTTPClient: opts.HTTPClient,
	}), nil
}

// Registry builds clients for a resolved state.Target. Base URLs are process
// defaults; a stored aggregator endpoint overrides its default.
type Registry struct {
	GeminiBaseURL     string
	OpenRouterBaseURL string
	SiteURL           string
	SiteName          string
	HTTPClient        *http.Client
}

func (r Registry) options(t state.Target) BuildOptions {
	opts := BuildOptions{
		Provider:   t.Provider,
		APIKey:     t.Credential.Secret,
		SiteURL:    r.SiteURL,
		SiteName:   r.SiteName,
		HTTPClient: r.HTTPClient,
	}
	switch t.Provider {
	case state.ProviderGemini:
		opts.BaseURL = r.GeminiBaseURL
	case state.ProviderOpenRouter:
		opts.BaseURL = r.OpenRouterBaseURL
		if strings.TrimSpace(t.Endpoint) != "" {
			opts.BaseURL = t.Endpoint
		}
	}
	return opts
}

func (r Registry) Chat(t state.Target) (providers.Provider, error) {
	return Build(r.options(t))
}

func (r Registry) Images(t state.Target) (providers.ImageGenerator, error) {
	return BuildImageGenerator(r.options(t))
}
