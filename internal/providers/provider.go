package providers

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one earlier message. Images from past turns are never resent.
type Turn struct {
	Role Role
	Text string
}

// ChatRequest carries one user turn. Nil sampling fields are omitted from the
// upstream payload so the provider applies its own defaults.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	History      []Turn
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	Image        *Image
}

type Citation struct {
	URI   string
	Title string
}

type ChatResponse struct {
	Text      string
	Citations []Citation
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

type ImageRequest struct {
	Model  string
	Prompt string
	Count  int
}

// ImageGenerator returns base64-encoded images.
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([]string, error)
}

const (
	MinImages = 1
	MaxImages = 4
)

// ClampImageCount bounds n to what image endpoints accept.
func ClampImageCount(n int) int {
	if n < MinImages {
		return MinImages
	}
	if n > MaxImages {
		return MaxImages
	}
	return n
}
