package state

import "strings"

const (
	DefaultGeminiModel     = "gemini-2.5-flash-preview-04-17"
	DefaultOpenRouterModel = "deepseek/deepseek-chat-v3-0324:free"
	DefaultImageModel      = "imagen-3.0-generate-002"

	// CodingMaxTokens replaces the shared output cap for code generation.
	CodingMaxTokens = 8000

	firstConversationName    = "First chat"
	migratedConversationName = "Previous chat (migrated)"
)

// Persisted keys. The names match the storage layout of earlier releases so
// existing data loads unchanged.
const (
	KeyAPISettings          = "kangSantriApiSettings"
	KeyTheme                = "kangSantriTheme"
	KeyActiveProvider       = "kangSantriActiveProvider"
	KeyChatParams           = "kangSantriChatParams"
	KeyPreset               = "kangSantriPreset"
	KeySavedCodes           = "kangSantriSavedCodes"
	KeyConversations        = "kangSantriConversations"
	KeyActiveConversationID = "kangSantriActiveConversationId"

	LegacyKeyAPIConfigs  = "kangSantriApiConfigs"
	LegacyKeyChatHistory = "kangSantriChatHistory"
)

// FallbackModel is the hardcoded model used when a provider has no usable default.
func FallbackModel(p Provider) string {
	if p == ProviderOpenRouter {
		return DefaultOpenRouterModel
	}
	return DefaultGeminiModel
}

var textModels = map[Provider][]string{
	ProviderGemini: {DefaultGeminiModel, "gemini-pro", "gemini-pro-vision"},
	ProviderOpenRouter: {
		"deepseek/deepseek-chat-v3-0324:free",
		"qwen/qwq-32b:free",
		"mistralai/mistral-7b-instruct:free",
		"google/gemini-2.0-flash-001",
		"openai/gpt-4.1-nano",
		"openai/gpt-4o-mini",
		"anthropic/claude-3-haiku",
	},
}

var visionModels = map[Provider][]string{
	ProviderGemini:     {"gemini-pro-vision", DefaultGeminiModel},
	ProviderOpenRouter: {"anthropic/claude-3-opus", "anthropic/claude-3-sonnet", "anthropic/claude-3-haiku"},
}

var imageModels = map[Provider][]string{
	ProviderGemini: {DefaultImageModel},
}

func TextModels(p Provider) []string   { return append([]string(nil), textModels[p]...) }
func VisionModels(p Provider) []string { return append([]string(nil), visionModels[p]...) }
func ImageModels(p Provider) []string  { return append([]string(nil), imageModels[p]...) }

var presetOrder = []Preset{PresetDefault, PresetNgaji, PresetBisnisHalal, PresetAIKreator, PresetSuaraSantri}

var presetPrompts = map[Preset]string{
	PresetDefault: "You are a helpful AI assistant.",
	PresetNgaji: "You are a knowledgeable and devout santri. Answer politely and religiously, " +
		"referring to Islamic teaching. Use Islamic greetings such as Assalamu'alaikum and close with " +
		"Wallahu a'lam bisshawab where fitting. Always open with Bismillahirrahmanirrahim.",
	PresetBisnisHalal: "You are an experienced business consultant focused on sharia and halal principles. " +
		"Give practical advice for small and medium businesses.",
	PresetAIKreator: "You are a highly creative AI that helps content creators produce brilliant ideas, " +
		"engaging scripts and viral captions.",
	PresetSuaraSantri: "You are a santri. Answer in text; the answer will also be read aloud.",
}

func Presets() []Preset {
	return append([]Preset(nil), presetOrder...)
}

func ParsePreset(s string) (Preset, bool) {
	s = strings.TrimSpace(s)
	for _, p := range presetOrder {
		if strings.EqualFold(s, string(p)) {
			return p, true
		}
	}
	return "", false
}

func (p Preset) Prompt() string {
	if prompt, ok := presetPrompts[p]; ok {
		return prompt
	}
	return presetPrompts[PresetDefault]
}

// DefaultChatParams returns a fresh copy of the built-in parameters.
func DefaultChatParams() ChatParams {
	return ChatParams{
		Temperature:  Float(0.7),
		TopP:         Float(0.9),
		MaxTokens:    Int(4096),
		SystemPrompt: PresetDefault.Prompt(),
		Model:        DefaultGeminiModel,
	}
}

func defaultAPISettings() APISettings {
	return APISettings{
		ProviderGemini: {
			Credentials:  []Credential{},
			DefaultModel: DefaultGeminiModel,
		},
		ProviderOpenRouter: {
			Credentials:  []Credential{},
			DefaultModel: DefaultOpenRouterModel,
		},
	}
}
