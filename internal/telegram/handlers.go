package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"kangsantri/internal/providers"
	"kangsantri/internal/queue"
	"kangsantri/internal/state"
)

func (s *Service) start(b *gotgbot.Bot, ctx *ext.Context) error {
	s.app.SetView(state.ViewTutorial)
	return s.replyWithMarkup(ctx, b, s.mainMenuText(), s.mainMenuKeyboard())
}

func (s *Service) help(b *gotgbot.Bot, ctx *ext.Context) error {
	s.app.SetView(state.ViewTutorial)
	return s.reply(ctx, b, helpText())
}

func (s *Service) menu(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.replyWithMarkup(ctx, b, s.mainMenuText(), s.mainMenuKeyboard())
}

func (s *Service) status(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.replyWithMarkup(ctx, b, s.statusCard(), s.backToMenuKeyboard())
}

func (s *Service) statusCard() string {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stored, ok, err := s.app.StoredKeys(c)
	if err != nil {
		s.logger.Warn().Err(err).Msg("status: list stored keys")
	}
	if !ok || err != nil {
		stored = nil
	} else if stored == nil {
		stored = []string{}
	}
	return statusText(s.app.Snapshot(), stored)
}

func (s *Service) cancelWizard(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveUser == nil {
		return nil
	}
	if err := s.wizard.Clear(context.Background(), ctx.EffectiveUser.Id); err != nil {
		return s.reply(ctx, b, "Failed to cancel right now.")
	}
	return s.reply(ctx, b, "Canceled.")
}

func (s *Service) newConversation(b *gotgbot.Bot, ctx *ext.Context) error {
	name := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	id := s.app.CreateConversation(name)
	conv, _ := s.app.Conversation(id)
	return s.reply(ctx, b, fmt.Sprintf("Started %q. Messages now go to this chat.", conv.Name))
}

func (s *Service) listConversations(b *gotgbot.Bot, ctx *ext.Context) error {
	s.app.SetView(state.ViewChat)
	convs := s.app.Conversations()
	active := s.app.ActiveConversation()
	return s.replyWithMarkup(ctx, b, conversationListText(convs, active.ID), conversationKeyboard(convs, active.ID))
}

func (s *Service) renameConversation(b *gotgbot.Bot, ctx *ext.Context) error {
	name := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if name == "" {
		return s.reply(ctx, b, "Usage: /rename <new name>")
	}
	active := s.app.ActiveConversation()
	if err := s.app.RenameConversation(active.ID, name); err != nil {
		return s.reply(ctx, b, "Failed to rename chat.")
	}
	return s.reply(ctx, b, fmt.Sprintf("Renamed to %q.", name))
}

func (s *Service) deleteConversation(b *gotgbot.Bot, ctx *ext.Context) error {
	id := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if id == "" {
		id = s.app.ActiveConversation().ID
	}
	if err := s.app.DeleteConversation(id); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return s.reply(ctx, b, "Chat not found.")
		}
		return s.reply(ctx, b, "Failed to delete chat.")
	}
	active := s.app.ActiveConversation()
	return s.reply(ctx, b, fmt.Sprintf("Chat deleted. Now in %q.", active.Name))
}

func (s *Service) history(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.reply(ctx, b, historyText(s.app.ActiveConversation(), historyLimit))
}

func (s *Service) provider(b *gotgbot.Bot, ctx *ext.Context) error {
	arg := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if arg == "" {
		return s.replyWithMarkup(ctx, b, "Active provider: "+string(s.app.ActiveProvider()), providerKeyboard(s.app.ActiveProvider()))
	}
	p, ok := state.ParseProvider(arg)
	if !ok {
		return s.reply(ctx, b, "Unknown provider. Use one of: "+providerNames())
	}
	if err := s.app.SetActiveProvider(p); err != nil {
		return s.reply(ctx, b, "Failed to switch provider.")
	}
	return s.reply(ctx, b, fmt.Sprintf("Provider set to %s, model %s.", p, s.app.ChatParams().Model))
}

func (s *Service) model(b *gotgbot.Bot, ctx *ext.Context) error {
	arg := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	p := s.app.ActiveProvider()
	if arg == "" {
		return s.replyWithMarkup(ctx, b, modelListText(p, s.app.ChatParams().Model), modelKeyboard(p))
	}
	params := s.app.UpdateChatParams(state.ParamsUpdate{Model: state.String(arg)})
	return s.reply(ctx, b, "Model for this session set to "+params.Model+".")
}

func (s *Service) defaultModel(b *gotgbot.Bot, ctx *ext.Context) error {
	rest := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	name, model := splitFirstWord(rest)
	p, ok := state.ParseProvider(name)
	if !ok || model == "" {
		return s.reply(ctx, b, "Usage: /defaultmodel <provider> <model>")
	}
	if err := s.app.SetDefaultModel(p, model); err != nil {
		return s.reply(ctx, b, "Failed to set default model.")
	}
	return s.reply(ctx, b, fmt.Sprintf("Default model for %s is now %s. Session model: %s.", p, model, s.app.ChatParams().Model))
}

func (s *Service) endpoint(b *gotgbot.Bot, ctx *ext.Context) error {
	arg := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if arg == "-" {
		arg = ""
	}
	if err := s.app.SetEndpoint(state.ProviderOpenRouter, arg); err != nil {
		return s.reply(ctx, b, "Failed to save endpoint.")
	}
	if arg == "" {
		return s.reply(ctx, b, "OpenRouter endpoint reset to the default.")
	}
	return s.reply(ctx, b, "OpenRouter endpoint set to "+arg+".")
}

func (s *Service) params(b *gotgbot.Bot, ctx *ext.Context) error {
	arg := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if arg == "" {
		return s.reply(ctx, b, paramsText(s.app.ChatParams()))
	}
	upd, err := parseParamsUpdate(arg)
	if err != nil {
		return s.reply(ctx, b, err.Error()+"\nUsage: /params temperature=0.7 top_p=0.9 max_tokens=4096")
	}
	return s.reply(ctx, b, paramsText(s.app.UpdateChatParams(upd)))
}

func (s *Service) systemPrompt(b *gotgbot.Bot, ctx *ext.Context) error {
	prompt := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if prompt == "" {
		return s.reply(ctx, b, "System prompt:\n"+s.app.ChatParams().SystemPrompt)
	}
	s.app.UpdateChatParams(state.ParamsUpdate{SystemPrompt: state.String(prompt)})
	return s.reply(ctx, b, "System prompt updated.")
}

func (s *Service) preset(b *gotgbot.Bot, ctx *ext.Context) error {
	arg := strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText()))
	if arg == "" {
		return s.replyWithMarkup(ctx, b, "Active preset: "+string(s.app.Preset()), presetKeyboard(s.app.Preset()))
	}
	p, ok := state.ParsePreset(arg)
	if !ok {
		return s.reply(ctx, b, "Unknown preset. Use one of: "+presetNames())
	}
	if err := s.app.SetPreset(p); err != nil {
		return s.reply(ctx, b, "Failed to set preset.")
	}
	return s.reply(ctx, b, "Preset set to "+string(p)+".")
}

func (s *Service) theme(b *gotgbot.Bot, ctx *ext.Context) error {
	arg := strings.ToLower(strings.TrimSpace(commandRemainder(ctx.EffectiveMessage.GetText())))
	if arg == "" {
		return s.reply(ctx, b, "Theme: "+string(s.app.ToggleTheme()))
	}
	if err := s.app.SetTheme(state.Theme(arg)); err != nil {
		return s.reply(ctx, b, "Theme must be light or dark.")
	}
	return s.reply(ctx, b, "Theme: "+arg)
}

// privateText sends a chat turn, unless a key wizard is waiting for input.
func (s *Service) privateText(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveUser == nil || ctx.EffectiveMessage == nil {
		return nil
	}
	text := strings.TrimSpace(ctx.EffectiveMessage.GetText())
	if text == "" || strings.HasPrefix(text, "/") {
		return nil
	}

	st, err := s.wizard.Get(context.Background(), ctx.EffectiveUser.Id)
	if err != nil {
		s.logger.Error().Err(err).Msg("wizard load failed")
		return s.reply(ctx, b, "Wizard state error. Start again.")
	}
	if st != nil {
		return s.continueKeyWizard(b, ctx, st, text)
	}

	s.app.SetView(state.ViewChat)
	return s.enqueue(b, ctx, queue.Job{
		Kind:           queue.KindChat,
		Text:           text,
		ConversationID: s.app.ActiveConversation().ID,
	})
}

// privatePhoto sends the largest size of a photo along with its caption as a
// vision turn.
func (s *Service) privatePhoto(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	if msg == nil || len(msg.Photo) == 0 {
		return nil
	}
	photo := msg.Photo[len(msg.Photo)-1]
	raw, err := s.downloadFile(context.Background(), b, photo.FileId)
	if err != nil {
		s.logger.Error().Str("component", "telegram").Msg(SanitizeError(err, s.botToken))
		return s.reply(ctx, b, "Failed to download the photo.")
	}

	s.app.SetView(state.ViewChat)
	return s.enqueue(b, ctx, queue.Job{
		Kind:           queue.KindChat,
		Text:           strings.TrimSpace(msg.Caption),
		Image:          providers.EncodeImage(raw).DataURL(),
		ConversationID: s.app.ActiveConversation().ID,
	})
}

func (s *Service) enqueue(b *gotgbot.Bot, ctx *ext.Context, job queue.Job) error {
	if !s.allowRate(userID(ctx), b, ctx) {
		return nil
	}
	job.ChatID = ctx.EffectiveChat.Id
	job.MessageID = ctx.EffectiveMessage.MessageId
	if _, err := s.queue.Enqueue(context.Background(), job); err != nil {
		s.logger.Error().Err(err).Str("kind", string(job.Kind)).Msg("failed to enqueue job")
		return s.reply(ctx, b, "Queue is unavailable right now.")
	}
	s.metrics.EnqueuedJobs.Inc()
	_, _ = b.SendChatAction(ctx.EffectiveChat.Id, chatAction(job.Kind), nil)
	return nil
}

func (s *Service) allowRate(userID int64, b *gotgbot.Bot, ctx *ext.Context) bool {
	if userID == 0 || s.rateLimiter == nil {
		return true
	}
	ok, _, resetAt, err := s.rateLimiter.Allow(context.Background(), userID, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("rate limiter failed")
		return true
	}
	if ok {
		return true
	}
	_ = s.reply(ctx, b, "Rate limit exceeded. Try again after "+resetAt.Format("15:04 UTC"))
	return false
}

func (s *Service) reply(ctx *ext.Context, b *gotgbot.Bot, text string) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}

func chatAction(kind queue.Kind) string {
	switch kind {
	case queue.KindImage:
		return "upload_photo"
	case queue.KindCode:
		return "upload_document"
	default:
		return "typing"
	}
}

func commandRemainder(text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func splitFirstWord(s string) (first string, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	idx := strings.IndexAny(s, " \n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

func userID(ctx *ext.Context) int64 {
	if ctx.EffectiveUser == nil {
		return 0
	}
	return ctx.EffectiveUser.Id
}
