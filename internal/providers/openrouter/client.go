package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kangsantri/internal/providers"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	providerName   = "openrouter"
)

type Config struct {
	BaseURL    string
	APIKey     string
	SiteURL    string
	SiteName   string
	Headers    map[string]string
	HTTPClient *http.Client
}

// Client speaks the OpenAI-compatible chat completions protocol of the
// aggregator. A failed call is returned as-is, never retried.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return providers.ChatResponse{}, fmt.Errorf("model is empty")
	}
	body, endpointURL, err := c.buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	text, err := c.callOnce(ctx, endpointURL, body, req.Model)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

func (c *Client) buildPayload(req providers.ChatRequest) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	messages := make([]message, 0, len(req.History)+2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, message{Role: "system", Content: req.SystemPrompt})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == providers.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, message{Role: role, Content: turn.Text})
	}
	// Text-only turns send a plain string; multimodal turns send parts.
	if req.Image != nil {
		messages = append(messages, message{Role: "user", Content: []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: req.Image.DataURL()}},
		}})
	} else {
		messages = append(messages, message{Role: "user", Content: req.Prompt})
	}

	b, err := json.Marshal(completionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal chat completion payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte, model string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &providers.APIError{Provider: providerName, Message: "api key is empty", Kind: providers.ErrInvalidKey}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.cfg.SiteURL)
	}
	if c.cfg.SiteName != "" {
		req.Header.Set("X-Title", c.cfg.SiteName)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", classify(resp.StatusCode, respBody, model)
	}
	return parseChatCompletions(respBody)
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if strings.HasSuffix(base, "/chat/completions") {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat/completions"
	return u.String(), nil
}

func classify(status int, body []byte, model string) error {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
			Code    any    `json:"code"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &providers.APIError{Provider: providerName, Status: status}
	switch {
	case payload.Error != nil && payload.Error.Message != "":
		e.Message = payload.Error.Message
		if payload.Error.Code != nil {
			e.Code = fmt.Sprint(payload.Error.Code)
		}
	case payload.Detail != "":
		e.Message = payload.Detail
	default:
		e.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = providers.ErrInvalidKey
	case status == http.StatusPaymentRequired:
		e.Kind = providers.ErrInsufficientCredit
	case status == http.StatusTooManyRequests:
		e.Kind = providers.ErrRateLimited
	case strings.Contains(e.Message, "Model not found"), strings.Contains(strings.ToLower(e.Message), "not a valid model"):
		e.Kind = providers.ErrModelNotFound
		e.Message = fmt.Sprintf("%q: %s", model, e.Message)
	case status == http.StatusRequestEntityTooLarge:
		e.Kind = providers.ErrPayloadTooLarge
	}
	return e
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &providers.APIError{Provider: providerName, Message: "empty choices in response", Kind: providers.ErrEmptyResponse}
	}
	if resp.Choices[0].Text != "" {
		return resp.Choices[0].Text, nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); strings.TrimSpace(content) != "" {
		return content, nil
	}
	return "", &providers.APIError{Provider: providerName, Message: "missing message content in response", Kind: providers.ErrEmptyResponse}
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
