package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"kangsantri/internal/state"
)

const (
	maxLabelRunes = 64
	maxPhotoBytes = 20 << 20
)

func (s *Service) addKey(b *gotgbot.Bot, ctx *ext.Context) error {
	arg := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	p, ok := state.ParseProvider(arg)
	if !ok {
		return s.reply(ctx, b, "Usage: /addkey <"+providerNames()+">")
	}
	s.app.SetView(state.ViewSettings)
	st := keyWizardState{Step: stepKeyLabel, Provider: p}
	if err := s.wizard.Set(context.Background(), ctx.EffectiveUser.Id, st); err != nil {
		return s.reply(ctx, b, "Failed to start the key wizard.")
	}
	return s.reply(ctx, b, fmt.Sprintf("Send a label for the new %s key, or /cancel.", p))
}

func (s *Service) replaceKey(b *gotgbot.Bot, ctx *ext.Context) error {
	p, id, _, ok := parseKeyArgs(commandRemainder(ctx.EffectiveMessage.GetText()))
	if !ok {
		return s.reply(ctx, b, "Usage: /rekey <provider> <key id>")
	}
	if !s.hasCredential(p, id) {
		return s.reply(ctx, b, "Key not found.")
	}
	st := keyWizardState{Step: stepKeySecret, Provider: p, CredentialID: id}
	if err := s.wizard.Set(context.Background(), ctx.EffectiveUser.Id, st); err != nil {
		return s.reply(ctx, b, "Failed to start the key wizard.")
	}
	return s.reply(ctx, b, "Send the new secret. The message is deleted once saved.")
}

func (s *Service) renameKey(b *gotgbot.Bot, ctx *ext.Context) error {
	p, id, label, ok := parseKeyArgs(commandRemainder(ctx.EffectiveMessage.GetText()))
	if !ok {
		return s.reply(ctx, b, "Usage: /renamekey <provider> <key id> [label]")
	}
	if label == "" {
		if !s.hasCredential(p, id) {
			return s.reply(ctx, b, "Key not found.")
		}
		st := keyWizardState{Step: stepRename, Provider: p, CredentialID: id}
		if err := s.wizard.Set(context.Background(), ctx.EffectiveUser.Id, st); err != nil {
			return s.reply(ctx, b, "Failed to start the key wizard.")
		}
		return s.reply(ctx, b, "Send the new label.")
	}
	return s.reply(ctx, b, s.applyLabel(p, id, label))
}

func (s *Service) useKey(b *gotgbot.Bot, ctx *ext.Context) error {
	p, id, _, ok := parseKeyArgs(commandRemainder(ctx.EffectiveMessage.GetText()))
	if !ok {
		return s.reply(ctx, b, "Usage: /usekey <provider> <key id>")
	}
	return s.reply(ctx, b, s.activateKey(p, id))
}

func (s *Service) deleteKey(b *gotgbot.Bot, ctx *ext.Context) error {
	p, id, _, ok := parseKeyArgs(commandRemainder(ctx.EffectiveMessage.GetText()))
	if !ok {
		return s.reply(ctx, b, "Usage: /delkey <provider> <key id>")
	}
	return s.reply(ctx, b, s.removeKey(p, id))
}

func (s *Service) listKeys(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.sendKeyLists(b, ctx, strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText())))
}

// sendKeyLists sends one message per provider, or only for the named one.
func (s *Service) sendKeyLists(b *gotgbot.Bot, ctx *ext.Context, only string) error {
	s.app.SetView(state.ViewSettings)
	for _, p := range state.Providers() {
		if only != "" {
			if want, ok := state.ParseProvider(only); !ok || want != p {
				continue
			}
		}
		ps, err := s.app.ProviderSettings(p)
		if err != nil {
			continue
		}
		if err := s.replyWithMarkup(ctx, b, keyListText(p, ps), keyKeyboard(p, ps)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) continueKeyWizard(b *gotgbot.Bot, ctx *ext.Context, st *keyWizardState, text string) error {
	uid := ctx.EffectiveUser.Id
	switch st.Step {
	case stepKeyLabel:
		if len([]rune(text)) > maxLabelRunes {
			return s.reply(ctx, b, fmt.Sprintf("Label is too long (max %d characters).", maxLabelRunes))
		}
		st.Label = text
		st.Step = stepKeySecret
		if err := s.wizard.Set(context.Background(), uid, *st); err != nil {
			return s.reply(ctx, b, "Failed to persist wizard state.")
		}
		return s.reply(ctx, b, "Now send the API key. The message is deleted once saved.")

	case stepKeySecret:
		s.deleteSecretMessage(b, ctx)
		var out string
		if st.CredentialID != "" {
			out = s.applySecret(st.Provider, st.CredentialID, text)
		} else {
			out = s.storeNewKey(st.Provider, st.Label, text)
		}
		_ = s.wizard.Clear(context.Background(), uid)
		return s.reply(ctx, b, out)

	case stepRename:
		_ = s.wizard.Clear(context.Background(), uid)
		return s.reply(ctx, b, s.applyLabel(st.Provider, st.CredentialID, text))
	}

	_ = s.wizard.Clear(context.Background(), uid)
	return nil
}

func (s *Service) storeNewKey(p state.Provider, label, secret string) string {
	cred, err := s.app.AddCredential(p, label, secret)
	if err != nil {
		s.logger.Error().Err(err).Str("provider", string(p)).Msg("add credential failed")
		return "Failed to save the key."
	}
	s.logger.Info().Str("provider", string(p)).Str("key_id", cred.ID).Msg("credential added")
	if cred.IsActive {
		return fmt.Sprintf("Key %q saved and active for %s.", cred.Label, p)
	}
	return fmt.Sprintf("Key %q saved. Activate it with /usekey %s %s", cred.Label, p, cred.ID)
}

func (s *Service) applySecret(p state.Provider, id, secret string) string {
	if err := s.app.UpdateCredential(p, id, state.CredentialUpdate{Secret: &secret}); err != nil {
		return keyErrorText(err, "Failed to update the key.")
	}
	return "Key secret updated."
}

func (s *Service) applyLabel(p state.Provider, id, label string) string {
	if len([]rune(label)) > maxLabelRunes {
		return fmt.Sprintf("Label is too long (max %d characters).", maxLabelRunes)
	}
	if err := s.app.UpdateCredential(p, id, state.CredentialUpdate{Label: &label}); err != nil {
		return keyErrorText(err, "Failed to rename the key.")
	}
	return fmt.Sprintf("Key renamed to %q.", label)
}

func (s *Service) activateKey(p state.Provider, id string) string {
	if err := s.app.SetActiveCredential(p, id); err != nil {
		return keyErrorText(err, "Failed to activate the key.")
	}
	return fmt.Sprintf("Key activated for %s. Session model: %s.", p, s.app.ChatParams().Model)
}

func (s *Service) removeKey(p state.Provider, id string) string {
	if err := s.app.DeleteCredential(p, id); err != nil {
		return keyErrorText(err, "Failed to delete the key.")
	}
	return "Key deleted."
}

func (s *Service) hasCredential(p state.Provider, id string) bool {
	ps, err := s.app.ProviderSettings(p)
	if err != nil {
		return false
	}
	for _, c := range ps.Credentials {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *Service) deleteSecretMessage(b *gotgbot.Bot, ctx *ext.Context) {
	msg := ctx.EffectiveMessage
	if msg == nil || ctx.EffectiveChat == nil {
		return
	}
	if _, err := b.DeleteMessage(ctx.EffectiveChat.Id, msg.MessageId, nil); err != nil {
		s.logger.Warn().Str("component", "telegram").Msg(SanitizeError(err, s.botToken))
	}
}

func (s *Service) downloadFile(ctx context.Context, b *gotgbot.Bot, fileID string) ([]byte, error) {
	f, err := b.GetFileWithContext(ctx, fileID, nil)
	if err != nil {
		return nil, err
	}
	url := "https://api.telegram.org/file/bot" + b.Token + "/" + f.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}

func parseKeyArgs(rest string) (state.Provider, string, string, bool) {
	name, rest := splitFirstWord(rest)
	id, label := splitFirstWord(rest)
	p, ok := state.ParseProvider(name)
	if !ok || id == "" {
		return "", "", "", false
	}
	return p, id, label, true
}

func keyErrorText(err error, fallback string) string {
	if errors.Is(err, state.ErrNotFound) {
		return "Key not found."
	}
	return fallback
}

// maskSecret keeps the last four characters of a secret visible.
func maskSecret(secret string) string {
	r := []rune(secret)
	if len(r) <= 4 {
		return strings.Repeat("•", len(r))
	}
	return strings.Repeat("•", 4) + string(r[len(r)-4:])
}

// SanitizeError renders err with the bot token redacted.
func SanitizeError(err error, token string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.TrimSpace(token) == "" {
		return msg
	}

	msg = strings.ReplaceAll(msg, token, "<redacted-token>")
	if idx := strings.Index(token, ":"); idx > 0 {
		botID := token[:idx]
		msg = strings.ReplaceAll(msg, "/bot"+botID+":", "/bot<redacted>:")
		msg = strings.ReplaceAll(msg, "bot"+botID+"/", "bot<redacted>/")
	}
	return msg
}
