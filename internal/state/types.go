package state

import (
	"strings"
	"time"
)

// Provider is an external AI service.
type Provider string

const (
	ProviderGemini     Provider = "Gemini"
	ProviderOpenRouter Provider = "OpenRouter"
)

var providerOrder = []Provider{ProviderGemini, ProviderOpenRouter}

// Providers lists the supported providers in display order.
func Providers() []Provider {
	return append([]Provider(nil), providerOrder...)
}

func (p Provider) Valid() bool {
	for _, known := range providerOrder {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProvider matches a provider name case-insensitively.
func ParseProvider(s string) (Provider, bool) {
	s = strings.TrimSpace(s)
	for _, known := range providerOrder {
		if strings.EqualFold(s, string(known)) {
			return known, true
		}
	}
	return "", false
}

// Credential is a named API secret. Within one provider at most one entry is
// active, and exactly one when the list is non-empty.
type Credential struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Secret   string `json:"secret"`
	IsActive bool   `json:"isActive"`
}

type CredentialUpdate struct {
	Label  *string
	Secret *string
}

// ProviderSettings holds one provider's credentials and model defaults.
// Endpoint is only meaningful for the aggregator provider.
type ProviderSettings struct {
	Credentials  []Credential `json:"credentials"`
	DefaultModel string       `json:"defaultModel"`
	Endpoint     string       `json:"endpoint,omitempty"`
}

type APISettings map[Provider]ProviderSettings

func (s APISettings) clone() APISettings {
	out := make(APISettings, len(s))
	for p, ps := range s {
		out[p] = ps.clone()
	}
	return out
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is immutable once appended; conversations replace their message
// slice wholesale.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Provider  Provider  `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	ImageData string    `json:"imageData,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c Conversation) clone() Conversation {
	c.Messages = append([]Message(nil), c.Messages...)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return c
}

type CodeProject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ProjectUpdate struct {
	Name *string
	Code *string
}

// View is the top-level screen currently shown to the owner.
type View string

const (
	ViewChat       View = "chat"
	ViewImage      View = "image"
	ViewCoding     View = "coding"
	ViewTutorial   View = "tutorial"
	ViewSavedCodes View = "saved_codes"
	ViewSettings   View = "settings"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Preset selects a canned system prompt.
type Preset string

const (
	PresetDefault     Preset = "Default"
	PresetNgaji       Preset = "Ngaji Mode"
	PresetBisnisHalal Preset = "Bisnis Halal"
	PresetAIKreator   Preset = "AI Kreator"
	PresetSuaraSantri Preset = "Suara Santri"
)

// Snapshot is a deep copy of the whole application state.
type Snapshot struct {
	Theme                Theme
	View                 View
	ActiveProvider       Provider
	Settings             APISettings
	ChatParams           ChatParams
	Preset               Preset
	Conversations        []Conversation
	ActiveConversationID string
	Projects             []CodeProject
	ActiveEditingID      string
}
