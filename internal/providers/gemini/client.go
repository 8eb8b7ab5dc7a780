package gemini

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
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	providerName   = "gemini"
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client talks to the Generative Language REST API for text, vision and
// Imagen requests. Failed calls are returned as-is, never retried.
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

var (
	_ providers.Provider       = (*Client)(nil)
	_ providers.ImageGenerator = (*Client)(nil)
)

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason      string `json:"finishReason"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	body, err := json.Marshal(buildGenerateRequest(req))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("marshal generate payload: %w", err)
	}
	endpoint, err := c.modelURL(req.Model, "generateContent")
	if err != nil {
		return providers.ChatResponse{}, err
	}

	respBody, err := c.post(ctx, endpoint, body, req.Model)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return parseGenerateResponse(respBody)
}

func buildGenerateRequest(req providers.ChatRequest) generateRequest {
	contents := make([]content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := "user"
		if turn.Role == providers.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: turn.Text}}})
	}

	current := content{Role: "user"}
	if req.Image != nil {
		current.Parts = append(current.Parts, part{InlineData: &inlineData{MimeType: req.Image.MIMEType, Data: req.Image.Data}})
	}
	current.Parts = append(current.Parts, part{Text: req.Prompt})
	contents = append(contents, current)

	out := generateRequest{Contents: contents}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil {
		out.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

func parseGenerateResponse(body []byte) (providers.ChatResponse, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.ChatResponse{}, fmt.Errorf("decode generate response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		msg := "no candidates in response"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return providers.ChatResponse{}, &providers.APIError{Provider: providerName, Message: msg, Kind: providers.ErrEmptyResponse}
	}

	cand := resp.Candidates[0]
	texts := make([]string, 0, len(cand.Content.Parts))
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	out := providers.ChatResponse{Text: strings.Join(texts, "")}
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			out.Citations = append(out.Citations, providers.Citation{URI: chunk.Web.URI, Title: chunk.Web.Title})
		}
	}
	if strings.TrimSpace(out.Text) == "" {
		msg := "empty text in response"
		if cand.FinishReason != "" {
			msg += " (finish reason " + cand.FinishReason + ")"
		}
		return providers.ChatResponse{}, &providers.APIError{Provider: providerName, Message: msg, Kind: providers.ErrEmptyResponse}
	}
	return out, nil
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount    int    `json:"sampleCount"`
	OutputMimeType string `json:"outputMimeType"`
}

// GenerateImages calls Imagen. The count is clamped to 1..4 and images come
// back as base64 JPEG.
func (c *Client) GenerateImages(ctx context.Context, req providers.ImageRequest) ([]string, error) {
	body, err := json.Marshal(predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParameters{
			SampleCount:    providers.ClampImageCount(req.Count),
			OutputMimeType: "image/jpeg",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal predict payload: %w", err)
	}
	endpoint, err := c.modelURL(req.Model, "predict")
	if err != nil {
		return nil, err
	}

	respBody, err := c.post(ctx, endpoint, body, req.Model)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	images := make([]string, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		if p.BytesBase64Encoded != "" {
			images = append(images, p.BytesBase64Encoded)
		}
	}
	if len(images) == 0 {
		return nil, &providers.APIError{Provider: providerName, Message: "no images returned", Kind: providers.ErrEmptyResponse}
	}
	return images, nil
}

func (c *Client) modelURL(model, method string) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", fmt.Errorf("model is empty")
	}
	u, err := url.Parse(strings.TrimSpace(c.cfg.BaseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1beta/models/" + strings.TrimPrefix(model, "models/") + ":" + method
	return u.String(), nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte, model string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, &providers.APIError{Provider: providerName, Message: "api key is empty", Kind: providers.ErrInvalidKey}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classify(resp.StatusCode, respBody, model)
	}
	return respBody, nil
}

func classify(status int, body []byte, model string) error {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &providers.APIError{
		Provider: providerName,
		Status:   status,
		Code:     payload.Error.Status,
		Message:  payload.Error.Message,
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	lower := strings.ToLower(e.Message)
	switch {
	case strings.Contains(lower, "api key not valid"), status == http.StatusUnauthorized:
		e.Kind = providers.ErrInvalidKey
	case strings.Contains(lower, "billing"):
		e.Kind = providers.ErrBilling
	case strings.Contains(lower, "quota"), status == http.StatusTooManyRequests:
		e.Kind = providers.ErrQuotaExceeded
	case strings.Contains(lower, "model") && strings.Contains(lower, "not found"), status == http.StatusNotFound:
		e.Kind = providers.ErrModelNotFound
		e.Message = fmt.Sprintf("%q: %s", model, e.Message)
	case strings.Contains(lower, "payload size exceeds"), status == http.StatusRequestEntityTooLarge:
		e.Kind = providers.ErrPayloadTooLarge
	}
	return e
}
