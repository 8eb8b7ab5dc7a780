package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Schema v0 of the credential slice: one bare key per provider.
type legacyProviderConfig struct {
	APIKey      string `json:"apiKey"`
	Model       string `json:"model"`
	Endpoint    string `json:"endpoint"`
	LastUpdated string `json:"lastUpdated"`
}

// Schema v0 of the chat history: a flat message array without conversations.
type legacyMessage struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Sender       string `json:"sender"`
	Timestamp    string `json:"timestamp"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	ImagePreview string `json:"imagePreview"`
	ImageData    string `json:"imageData"`
}

// parseLegacyCredentials turns the single-key-per-provider config into
// credential lists. Each non-empty legacy key becomes the provider's only,
// active credential.
func parseLegacyCredentials(raw string, newID func(string) string) Result[APISettings] {
	var parsed map[string]legacyProviderConfig
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ParseError[APISettings](fmt.Errorf("decode legacy api configs: %w", err))
	}

	settings := defaultAPISettings()
	for name, cfg := range parsed {
		p, ok := ParseProvider(name)
		if !ok || strings.TrimSpace(cfg.APIKey) == "" {
			continue
		}
		ps := ProviderSettings{
			Credentials: []Credential{{
				ID:       newID("key"),
				Label:    string(p) + " (migrated)",
				Secret:   cfg.APIKey,
				IsActive: true,
			}},
			DefaultModel: cfg.Model,
		}
		if ps.DefaultModel == "" {
			ps.DefaultModel = FallbackModel(p)
		}
		if p == ProviderOpenRouter {
			ps.Endpoint = cfg.Endpoint
		}
		settings[p] = ps
	}
	return Ok(settings)
}

// parseLegacyHistory wraps a flat message array into one conversation. An
// empty array is skipped. Messages from an unknown sender are left out and
// unreadable timestamps become now.
func parseLegacyHistory(raw string, now time.Time, newID func(string) string, logger zerolog.Logger) Result[[]Conversation] {
	var parsed []legacyMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ParseError[[]Conversation](fmt.Errorf("decode legacy chat history: %w", err))
	}
	if len(parsed) == 0 {
		return Skip[[]Conversation]()
	}

	messages := make([]Message, 0, len(parsed))
	for i, lm := range parsed {
		msg, err := lm.toMessage()
		if err != nil {
			logger.Warn().Err(err).Int("index", i).Str("id", lm.ID).Msg("skipping legacy message")
			continue
		}
		msg.Timestamp = now
		if lm.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, lm.Timestamp); err == nil {
				msg.Timestamp = ts.UTC()
			} else {
				logger.Warn().Int("index", i).Str("timestamp", lm.Timestamp).
					Msg("unreadable legacy timestamp, using migration time")
			}
		}
		if msg.ID == "" {
			msg.ID = newID("msg")
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return ParseError[[]Conversation](fmt.Errorf("legacy chat history has no readable messages out of %d", len(parsed)))
	}

	return Ok([]Conversation{{
		ID:        newID("conv"),
		Name:      migratedConversationName,
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	}})
}

func (lm legacyMessage) toMessage() (Message, error) {
	var sender Sender
	switch strings.ToLower(strings.TrimSpace(lm.Sender)) {
	case string(SenderUser):
		sender = SenderUser
	case string(SenderAI):
		sender = SenderAI
	default:
		return Message{}, fmt.Errorf("unknown sender %q", lm.Sender)
	}

	msg := Message{
		ID:        lm.ID,
		Text:      lm.Text,
		Sender:    sender,
		Model:     lm.Model,
		ImageData: lm.ImageData,
	}
	if msg.ImageData == "" {
		msg.ImageData = lm.ImagePreview
	}
	if p, ok := ParseProvider(lm.Provider); ok {
		msg.Provider = p
	}
	return msg, nil
}
