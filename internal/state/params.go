package state

import "fmt"

// ChatParams are the shared generation parameters. Nil fields are left to the
// provider's own defaults.
type ChatParams struct {
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// ParamsUpdate is a partial ChatParams; only non-nil fields are applied.
type ParamsUpdate struct {
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
	Model        *string  `json:"model,omitempty"`
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func String(v string) *string  { return &v }

func (p ChatParams) Clone() ChatParams {
	if p.Temperature != nil {
		p.Temperature = Float(*p.Temperature)
	}
	if p.TopP != nil {
		p.TopP = Float(*p.TopP)
	}
	if p.MaxTokens != nil {
		p.MaxTokens = Int(*p.MaxTokens)
	}
	return p
}

// WithOverrides returns a copy with the output cap and system prompt
// replaced, leaving p untouched.
func (p ChatParams) WithOverrides(maxTokens int, systemPrompt string) ChatParams {
	out := p.Clone()
	out.MaxTokens = Int(maxTokens)
	out.SystemPrompt = systemPrompt
	return out
}

func (p ChatParams) apply(u ParamsUpdate) ChatParams {
	out := p.Clone()
	if u.Temperature != nil {
		out.Temperature = Float(*u.Temperature)
	}
	if u.TopP != nil {
		out.TopP = Float(*u.TopP)
	}
	if u.MaxTokens != nil {
		out.MaxTokens = Int(*u.MaxTokens)
	}
	if u.SystemPrompt != nil {
		out.SystemPrompt = *u.SystemPrompt
	}
	if u.Model != nil {
		out.Model = *u.Model
	}
	return out
}

// UpdateChatParams shallow-merges u into the shared parameters.
func (a *App) UpdateChatParams(u ParamsUpdate) ChatParams {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.params = a.params.apply(u)
	a.commit()
	return a.params.Clone()
}

// SetActiveProvider switches provider and re-derives the chat model from its
// default.
func (a *App) SetActiveProvider(p Provider) error {
	return a.SwitchProvider(p, "")
}

// SwitchProvider switches provider. A non-empty model wins over the derived
// default within the same update.
func (a *App) SwitchProvider(p Provider, model string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, err := a.settingsFor(p)
	if err != nil {
		return err
	}
	a.activeProvider = p
	if model == "" {
		model = defaultModelOf(p, ps)
	}
	a.params.Model = model
	a.commit()
	return nil
}

// SetPreset selects a canned system prompt and installs it.
func (a *App) SetPreset(p Preset) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := presetPrompts[p]; !ok {
		return fmt.Errorf("preset %q: %w", p, ErrNotFound)
	}
	a.preset = p
	a.params.SystemPrompt = p.Prompt()
	a.commit()
	return nil
}

func (a *App) ChatParams() ChatParams {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.params.Clone()
}
