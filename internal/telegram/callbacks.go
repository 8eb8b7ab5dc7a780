package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"kangsantri/internal/state"
)

func (s *Service) onCallback(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx == nil || ctx.CallbackQuery == nil {
		return nil
	}

	data := strings.TrimSpace(ctx.CallbackQuery.Data)

	switch data {
	case cbMenu:
		s.answerCallback(b, ctx, "", false)
		return s.editOrReplyCallback(ctx, b, s.mainMenuText(), s.mainMenuKeyboard())

	case cbHelp:
		s.answerCallback(b, ctx, "", false)
		s.app.SetView(state.ViewTutorial)
		return s.editOrReplyCallback(ctx, b, helpText(), s.backToMenuKeyboard())

	case cbStatus:
		s.answerCallback(b, ctx, "", false)
		return s.editOrReplyCallback(ctx, b, s.statusCard(), s.backToMenuKeyboard())

	case cbParams:
		s.answerCallback(b, ctx, "", false)
		return s.editOrReplyCallback(ctx, b, paramsText(s.app.ChatParams()), s.backToMenuKeyboard())

	case cbChats:
		s.answerCallback(b, ctx, "", false)
		return s.refreshConversations(ctx, b)

	case cbNewChat:
		id := s.app.CreateConversation("")
		conv, _ := s.app.Conversation(id)
		s.answerCallback(b, ctx, "Started "+conv.Name, false)
		return s.refreshConversations(ctx, b)

	case cbKeys:
		s.answerCallback(b, ctx, "", false)
		return s.sendKeyLists(b, ctx, "")

	case cbProjects:
		s.answerCallback(b, ctx, "", false)
		editing, _ := s.app.ActiveEditing()
		projects := s.app.Projects()
		return s.editOrReplyCallback(ctx, b, projectListText(projects, editing.ID), projectKeyboard(projects))
	}

	kind, arg := splitCallback(data)
	switch kind {
	case cbConvSelect:
		conv := s.app.SelectConversation(arg)
		s.answerCallback(b, ctx, "Now in "+conv.Name, false)
		return s.refreshConversations(ctx, b)

	case cbConvDelete:
		if err := s.app.DeleteConversation(arg); err != nil {
			s.answerCallback(b, ctx, "Chat not found.", true)
			return nil
		}
		s.answerCallback(b, ctx, "Chat deleted.", false)
		return s.refreshConversations(ctx, b)

	case cbProvider:
		p, ok := providerFromCode(arg)
		if !ok {
			break
		}
		if err := s.app.SetActiveProvider(p); err != nil {
			s.answerCallback(b, ctx, "Failed to switch provider.", true)
			return nil
		}
		s.answerCallback(b, ctx, fmt.Sprintf("%s · %s", p, s.app.ChatParams().Model), false)
		return s.editOrReplyCallback(ctx, b, "Active provider: "+string(p), providerKeyboard(p))

	case cbModel:
		code, idx, _ := strings.Cut(arg, ":")
		p, ok := providerFromCode(code)
		models := state.TextModels(p)
		i, err := strconv.Atoi(idx)
		if !ok || err != nil || i < 0 || i >= len(models) {
			break
		}
		if p != s.app.ActiveProvider() {
			if err := s.app.SwitchProvider(p, models[i]); err != nil {
				s.answerCallback(b, ctx, "Failed to switch model.", true)
				return nil
			}
		} else {
			s.app.UpdateChatParams(state.ParamsUpdate{Model: state.String(models[i])})
		}
		s.answerCallback(b, ctx, "Model: "+models[i], false)
		return s.editOrReplyCallback(ctx, b, modelListText(p, s.app.ChatParams().Model), modelKeyboard(p))

	case cbPreset:
		presets := state.Presets()
		i, err := strconv.Atoi(arg)
		if err != nil || i < 0 || i >= len(presets) {
			break
		}
		if err := s.app.SetPreset(presets[i]); err != nil {
			s.answerCallback(b, ctx, "Failed to set preset.", true)
			return nil
		}
		s.answerCallback(b, ctx, "Preset: "+string(presets[i]), false)
		return s.editOrReplyCallback(ctx, b, "Active preset: "+string(presets[i]), presetKeyboard(presets[i]))

	case cbKeyUse, cbKeyDelete:
		code, id, _ := strings.Cut(arg, ":")
		p, ok := providerFromCode(code)
		if !ok || id == "" {
			break
		}
		var text string
		if kind == cbKeyUse {
			text = s.activateKey(p, id)
		} else {
			text = s.removeKey(p, id)
		}
		s.answerCallback(b, ctx, text, false)
		ps, err := s.app.ProviderSettings(p)
		if err != nil {
			return nil
		}
		return s.editOrReplyCallback(ctx, b, keyListText(p, ps), keyKeyboard(p, ps))

	case cbProjectShow:
		s.answerCallback(b, ctx, "", false)
		return s.sendProject(b, ctx, arg)

	case cbProjectEdit:
		s.answerCallback(b, ctx, s.startEditing(arg), false)
		return nil

	case cbProjectDel:
		s.answerCallback(b, ctx, s.removeProject(arg), false)
		editing, _ := s.app.ActiveEditing()
		projects := s.app.Projects()
		return s.editOrReplyCallback(ctx, b, projectListText(projects, editing.ID), projectKeyboard(projects))
	}

	s.answerCallback(b, ctx, fmt.Sprintf("Unknown action: %s", data), true)
	return nil
}

func (s *Service) refreshConversations(ctx *ext.Context, b *gotgbot.Bot) error {
	convs := s.app.Conversations()
	active := s.app.ActiveConversation()
	return s.editOrReplyCallback(ctx, b, conversationListText(convs, active.ID), conversationKeyboard(convs, active.ID))
}

// splitCallback separates "ks:kind:" from the argument that follows it.
func splitCallback(data string) (string, string) {
	rest := strings.TrimPrefix(data, cbPrefix)
	kind, arg, ok := strings.Cut(rest, ":")
	if !ok {
		return "", ""
	}
	return cbPrefix + kind + ":", arg
}

func (s *Service) answerCallback(b *gotgbot.Bot, ctx *ext.Context, text string, alert bool) {
	if ctx == nil || ctx.CallbackQuery == nil {
		return
	}
	opts := &gotgbot.AnswerCallbackQueryOpts{ShowAlert: alert}
	if text != "" {
		opts.Text = truncateRunes(text, 190)
	}
	_, _ = b.AnswerCallbackQuery(ctx.CallbackQuery.Id, opts)
}

func (s *Service) editOrReplyCallback(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx != nil && ctx.CallbackQuery != nil && ctx.CallbackQuery.Message != nil {
		opts := &gotgbot.EditMessageTextOpts{}
		if markup != nil {
			opts.ReplyMarkup = *markup
		}
		_, _, err := ctx.CallbackQuery.Message.EditText(b, text, opts)
		if err == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
			return nil
		}
	}
	return s.replyWithMarkup(ctx, b, text, markup)
}
