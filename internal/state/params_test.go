package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateChatParamsMergesNonNilFields(t *testing.T) {
	app := newHarness().open(t)

	got := app.UpdateChatParams(ParamsUpdate{Temperature: Float(1.1)})
	require.Equal(t, 1.1, *got.Temperature)
	require.Equal(t, 0.9, *got.TopP)
	require.Equal(t, 4096, *got.MaxTokens)
	require.Equal(t, DefaultGeminiModel, got.Model)

	got.Temperature = Float(0)
	require.Equal(t, 1.1, *app.ChatParams().Temperature, "returned params are a copy")
}

func TestSwitchingProviderRederivesModel(t *testing.T) {
	app := newHarness().open(t)
	require.NoError(t, app.SetDefaultModel(ProviderGemini, "m-a"))
	require.NoError(t, app.SetDefaultModel(ProviderOpenRouter, "m-b"))
	app.UpdateChatParams(ParamsUpdate{Model: String("whatever")})

	require.NoError(t, app.SetActiveProvider(ProviderOpenRouter))
	require.Equal(t, "m-b", app.ChatParams().Model)

	require.NoError(t, app.SetActiveProvider(ProviderGemini))
	require.Equal(t, "m-a", app.ChatParams().Model)
}

func TestSwitchProviderWithExplicitModel(t *testing.T) {
	app := newHarness().open(t)

	require.NoError(t, app.SwitchProvider(ProviderOpenRouter, "openai/gpt-4.1-nano"))
	require.Equal(t, ProviderOpenRouter, app.ActiveProvider())
	require.Equal(t, "openai/gpt-4.1-nano", app.ChatParams().Model)

	require.ErrorIs(t, app.SetActiveProvider(Provider("Nope")), ErrUnknownProvider)
	require.Equal(t, ProviderOpenRouter, app.ActiveProvider())
}

func TestSetPresetInstallsPrompt(t *testing.T) {
	app := newHarness().open(t)

	require.NoError(t, app.SetPreset(PresetAIKreator))
	require.Equal(t, PresetAIKreator, app.Preset())
	require.Equal(t, PresetAIKreator.Prompt(), app.ChatParams().SystemPrompt)

	require.ErrorIs(t, app.SetPreset(Preset("Pirate")), ErrNotFound)
}

func TestWithOverridesLeavesSourceUntouched(t *testing.T) {
	base := DefaultChatParams()
	coding := base.WithOverrides(CodingMaxTokens, "code only")

	require.Equal(t, CodingMaxTokens, *coding.MaxTokens)
	require.Equal(t, "code only", coding.SystemPrompt)
	require.Equal(t, 4096, *base.MaxTokens)
	require.Equal(t, PresetDefault.Prompt(), base.SystemPrompt)

	*coding.Temperature = 0
	require.Equal(t, 0.7, *base.Temperature)
}

func TestParsePresetAndProvider(t *testing.T) {
	p, ok := ParsePreset("ngaji mode")
	require.True(t, ok)
	require.Equal(t, PresetNgaji, p)

	prov, ok := ParseProvider(" openrouter ")
	require.True(t, ok)
	require.Equal(t, ProviderOpenRouter, prov)

	_, ok = ParseProvider("claude")
	require.False(t, ok)
}
