package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"kangsantri/internal/providers"
	"kangsantri/internal/state"
)

const (
	createCodePrompt = "You are an expert frontend developer (HTML, CSS, JavaScript). Output ONLY the raw code " +
		"requested. It must be valid code that renders directly in a browser. Do NOT include explanations, " +
		"greetings or markdown fences. Code only."
	modifyCodePrompt = "You are an expert at modifying frontend code (HTML, CSS, JavaScript). Apply the change the " +
		"user asks for to the given HTML. Output ONLY the complete updated raw code block. Do NOT include " +
		"explanations or markdown fences. Code only."

	defaultProjectName = "New AI project"
	projectNameLimit   = 30
)

type CodeRequest struct {
	Instruction string
	// ProjectID, when set, modifies that saved project instead of creating one.
	ProjectID string
	// Provider and Model override the active provider and its default model.
	Provider state.Provider
	Model    string
}

type CodeResult struct {
	ProjectID string
	Code      string
	Created   bool
}

var ErrEmptyInstruction = errors.New("instruction is empty")

// GenerateCode asks for a single-file HTML page, or for a modified version of
// an existing project, and saves the result. The shared chat parameters are
// cloned with a larger output cap and a coding system prompt; history is not
// sent.
func (s *Sender) GenerateCode(ctx context.Context, req CodeRequest) (CodeResult, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return CodeResult{}, ErrEmptyInstruction
	}

	var (
		existing state.CodeProject
		modify   = req.ProjectID != ""
	)
	if modify {
		p, ok := s.store.Project(req.ProjectID)
		if !ok {
			return CodeResult{}, fmt.Errorf("project %q: %w", req.ProjectID, state.ErrNotFound)
		}
		existing = p
	}

	target, err := s.codeTarget(req.Provider)
	if err != nil {
		return CodeResult{}, err
	}
	client, err := s.clients.Chat(target)
	if err != nil {
		return CodeResult{}, err
	}

	model := target.Params.Model
	if req.Model != "" {
		model = req.Model
	}

	systemPrompt, prompt := createCodePrompt, createCodeQuery(instruction)
	if modify {
		systemPrompt, prompt = modifyCodePrompt, modifyCodeQuery(existing.Code, instruction)
	}
	params := target.Params.WithOverrides(state.CodingMaxTokens, systemPrompt)
	params.Model = model

	resp, err := client.Chat(ctx, requestFrom(params, prompt, nil))
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", string(target.Provider)).Str("model", model).Msg("code request failed")
		return CodeResult{}, err
	}
	code := CleanCode(resp.Text)

	if modify {
		if err := s.store.UpdateProject(existing.ID, state.ProjectUpdate{Code: &code}); err != nil {
			return CodeResult{}, err
		}
		s.store.SetActiveEditing(existing.ID)
		return CodeResult{ProjectID: existing.ID, Code: code}, nil
	}

	id := s.store.AddProject(ProjectName(instruction), code)
	s.store.SetActiveEditing(id)
	return CodeResult{ProjectID: id, Code: code, Created: true}, nil
}

func (s *Sender) codeTarget(p state.Provider) (state.Target, error) {
	if p == "" {
		return s.store.ChatTarget()
	}
	return s.store.TargetFor(p)
}

func createCodeQuery(instruction string) string {
	return fmt.Sprintf("Write code for %q. Keep all CSS and JavaScript (if any) in one HTML file, "+
		"inline or in <style> and <script> tags.", instruction)
}

func modifyCodeQuery(code, instruction string) string {
	return fmt.Sprintf("CURRENT CODE:\n```html\n%s\n```\n\nUSER INSTRUCTION: %q\n\nUPDATED CODE (CODE ONLY):", code, instruction)
}

var (
	fenceRe    = regexp.MustCompile("(?s)^```[\\w-]*[ \\t]*\\n?(.*?)\\n?\\s*```$")
	preambleRe = regexp.MustCompile(`(?im)^(UPDATED CODE \(CODE ONLY\):|CODE \(CODE ONLY\):|CODE OUTPUT:\s*)+`)
)

// CleanCode strips a surrounding markdown fence and any echoed answer
// preamble from a model response.
func CleanCode(raw string) string {
	code := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(code); m != nil && strings.TrimSpace(m[1]) != "" {
		code = strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(preambleRe.ReplaceAllString(code, ""))
}

// ProjectName derives a saved-project name from the request text.
func ProjectName(instruction string) string {
	name := strings.TrimSpace(instruction)
	if r := []rune(name); len(r) > projectNameLimit {
		name = strings.TrimSpace(string(r[:projectNameLimit]))
	}
	if name == "" {
		return defaultProjectName
	}
	return name
}

type ImageRequest struct {
	Prompt string
	Count  int
	Model  string
}

// GenerateImages renders images with the first-party provider's active
// credential, whatever the active chat provider is.
func (s *Sender) GenerateImages(ctx context.Context, req ImageRequest) ([]string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyInstruction
	}
	target, err := s.store.TargetFor(state.ProviderGemini)
	if err != nil {
		return nil, err
	}
	gen, err := s.clients.Images(target)
	if err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = state.DefaultImageModel
	}
	images, err := gen.GenerateImages(ctx, providers.ImageRequest{
		Model:  model,
		Prompt: req.Prompt,
		Count:  providers.ClampImageCount(req.Count),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("model", model).Msg("image request failed")
		return nil, err
	}
	return images, nil
}
