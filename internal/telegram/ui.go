package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"kangsantri/internal/state"
)

const (
	cbPrefix = "ks:"

	cbMenu     = cbPrefix + "menu"
	cbHelp     = cbPrefix + "help"
	cbStatus   = cbPrefix + "status"
	cbChats    = cbPrefix + "chats"
	cbNewChat  = cbPrefix + "newchat"
	cbKeys     = cbPrefix + "keys"
	cbProjects = cbPrefix + "projects"
	cbParams   = cbPrefix + "params"

	cbConvSelect  = cbPrefix + "conv:"
	cbConvDelete  = cbPrefix + "convdel:"
	cbProvider    = cbPrefix + "prov:"
	cbModel       = cbPrefix + "model:"
	cbPreset      = cbPrefix + "preset:"
	cbKeyUse      = cbPrefix + "kuse:"
	cbKeyDelete   = cbPrefix + "kdel:"
	cbProjectShow = cbPrefix + "proj:"
	cbProjectEdit = cbPrefix + "projedit:"
	cbProjectDel  = cbPrefix + "projdel:"

	// Telegram rejects callback data longer than this.
	maxCallbackData = 64

	historyLimit = 10
)

func helpText() string {
	return strings.Join([]string{
		"Commands:",
		"Just send text to chat with the active provider. Send a photo with a caption to ask about it.",
		"",
		"Chats:",
		"/new [name] - start a new chat",
		"/chats - list and switch chats",
		"/rename <name> - rename the current chat",
		"/delete [id] - delete a chat",
		"/history - recent messages",
		"",
		"Keys:",
		"/addkey <provider> - add an API key (private wizard)",
		"/keys [provider] - list keys",
		"/usekey <provider> <id>",
		"/renamekey <provider> <id> [label]",
		"/rekey <provider> <id> - replace the secret",
		"/delkey <provider> <id>",
		"",
		"Model:",
		"/provider [name]",
		"/model [name] - session model",
		"/defaultmodel <provider> <model>",
		"/endpoint <url|-> - OpenRouter endpoint",
		"/params [temperature=.. top_p=.. max_tokens=..]",
		"/system [prompt]",
		"/preset [name]",
		"/theme [light|dark]",
		"",
		"Creating:",
		"/code <instruction> - build or modify a page",
		"/newcode <instruction> - always start a new project",
		"/projects, /project [id], /edit <id>, /delproject <id>",
		"/imagine [1-4] <prompt>",
		"",
		"/status, /menu, /cancel",
	}, "\n")
}

func (s *Service) mainMenuText() string {
	snap := s.app.Snapshot()
	active := s.app.ActiveConversation()
	return strings.Join([]string{
		"Kang Santri",
		"",
		fmt.Sprintf("Chat: %s", active.Name),
		fmt.Sprintf("Provider: %s (%s)", snap.ActiveProvider, snap.ChatParams.Model),
		fmt.Sprintf("Preset: %s", snap.Preset),
		"",
		"Send a message to start talking. /help lists every command.",
	}, "\n")
}

// statusText renders the status card. stored is nil when the backend cannot
// list its keys.
func statusText(snap state.Snapshot, stored []string) string {
	lines := []string{
		"Status",
		fmt.Sprintf("provider: %s", snap.ActiveProvider),
		fmt.Sprintf("model: %s", snap.ChatParams.Model),
		fmt.Sprintf("preset: %s", snap.Preset),
		fmt.Sprintf("theme: %s", snap.Theme),
		fmt.Sprintf("view: %s", snap.View),
		fmt.Sprintf("chats: %d", len(snap.Conversations)),
		fmt.Sprintf("projects: %d", len(snap.Projects)),
	}
	for _, p := range state.Providers() {
		ps := snap.Settings[p]
		active := "none"
		if c, ok := ps.Active(); ok {
			active = c.Label
		}
		lines = append(lines, fmt.Sprintf("%s keys: %d (active: %s)", p, len(ps.Credentials), active))
	}
	if stored != nil {
		lines = append(lines, fmt.Sprintf("stored slices: %d", len(stored)))
		for _, k := range stored {
			if k == state.LegacyKeyAPIConfigs || k == state.LegacyKeyChatHistory {
				lines = append(lines, fmt.Sprintf("unmigrated legacy data: %s", k))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func conversationListText(convs []state.Conversation, activeID string) string {
	lines := []string{"Chats (newest first):"}
	for _, c := range convs {
		marker := "  "
		if c.ID == activeID {
			marker = "▶ "
		}
		lines = append(lines, fmt.Sprintf("%s%s · %d messages · %s", marker, c.Name, len(c.Messages), c.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return strings.Join(lines, "\n")
}

func historyText(conv state.Conversation, limit int) string {
	msgs := conv.Messages
	if len(msgs) == 0 {
		return fmt.Sprintf("%q has no messages yet.", conv.Name)
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	lines := []string{conv.Name + ":"}
	for _, m := range msgs {
		who := "You"
		if m.Sender == state.SenderAI {
			who = "AI"
			if m.Model != "" {
				who += " (" + m.Model + ")"
			}
		}
		text := m.Text
		if m.ImageData != "" {
			text = "[image] " + text
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", m.Timestamp.Format(time.Kitchen), who, truncateRunes(text, 300)))
	}
	return strings.Join(lines, "\n")
}

func keyListText(p state.Provider, ps state.ProviderSettings) string {
	lines := []string{fmt.Sprintf("%s keys (default model %s):", p, ps.DefaultModel)}
	if p == state.ProviderOpenRouter && ps.Endpoint != "" {
		lines = append(lines, "endpoint: "+ps.Endpoint)
	}
	if len(ps.Credentials) == 0 {
		lines = append(lines, "none. Add one with /addkey "+string(p))
	}
	for _, c := range ps.Credentials {
		marker := "  "
		if c.IsActive {
			marker = "✓ "
		}
		lines = append(lines, fmt.Sprintf("%s%s %s [%s]", marker, c.Label, maskSecret(c.Secret), c.ID))
	}
	return strings.Join(lines, "\n")
}

func modelListText(p state.Provider, current string) string {
	lines := []string{fmt.Sprintf("%s models (current %s):", p, current)}
	for _, m := range state.TextModels(p) {
		lines = append(lines, "- "+m)
	}
	if vision := state.VisionModels(p); len(vision) > 0 {
		lines = append(lines, "", "Vision capable: "+strings.Join(vision, ", "))
	}
	lines = append(lines, "", "Any other model id works with /model <id>.")
	return strings.Join(lines, "\n")
}

func paramsText(p state.ChatParams) string {
	return strings.Join([]string{
		"Chat parameters",
		"model: " + p.Model,
		"temperature: " + formatFloat(p.Temperature),
		"top_p: " + formatFloat(p.TopP),
		"max_tokens: " + formatInt(p.MaxTokens),
		"system prompt: " + truncateRunes(p.SystemPrompt, 200),
	}, "\n")
}

func projectListText(projects []state.CodeProject, editingID string) string {
	if len(projects) == 0 {
		return "No saved projects. Create one with /code <instruction>."
	}
	lines := []string{"Projects:"}
	for _, p := range projects {
		marker := "  "
		if p.ID == editingID {
			marker = "✎ "
		}
		lines = append(lines, fmt.Sprintf("%s%s [%s] updated %s", marker, p.Name, p.ID, p.UpdatedAt.Format("2006-01-02 15:04")))
	}
	return strings.Join(lines, "\n")
}

// parseParamsUpdate reads space separated key=value pairs.
func parseParamsUpdate(args string) (state.ParamsUpdate, error) {
	var upd state.ParamsUpdate
	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return upd, fmt.Errorf("expected key=value, got %q", field)
		}
		switch strings.ToLower(key) {
		case "temperature", "temp":
			f, err := parseFloatParam(value, 0, 2)
			if err != nil {
				return upd, fmt.Errorf("temperature: %w", err)
			}
			upd.Temperature = f
		case "top_p", "topp":
			f, err := parseFloatParam(value, 0, 1)
			if err != nil {
				return upd, fmt.Errorf("top_p: %w", err)
			}
			upd.TopP = f
		case "max_tokens", "maxtokens":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return upd, fmt.Errorf("max_tokens must be a positive integer")
			}
			upd.MaxTokens = state.Int(n)
		default:
			return upd, fmt.Errorf("unknown parameter %q", key)
		}
	}
	return upd, nil
}

func parseFloatParam(value string, lo, hi float64) (*float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number")
	}
	if f < lo || f > hi {
		return nil, fmt.Errorf("must be between %g and %g", lo, hi)
	}
	return state.Float(f), nil
}

func (s *Service) mainMenuKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Chats", CallbackData: cbChats},
			{Text: "New chat", CallbackData: cbNewChat},
		},
		{
			{Text: "API keys", CallbackData: cbKeys},
			{Text: "Parameters", CallbackData: cbParams},
		},
		{
			{Text: "Projects", CallbackData: cbProjects},
			{Text: "Status", CallbackData: cbStatus},
		},
		{
			{Text: "Help", CallbackData: cbHelp},
			{Text: "Refresh", CallbackData: cbMenu},
		},
	}}
}

func (s *Service) backToMenuKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{{Text: "Back to menu", CallbackData: cbMenu}},
	}}
}

func conversationKeyboard(convs []state.Conversation, activeID string) *gotgbot.InlineKeyboardMarkup {
	rows := [][]gotgbot.InlineKeyboardButton{}
	for _, c := range convs {
		if len(cbConvDelete+c.ID) > maxCallbackData {
			continue
		}
		label := truncateRunes(c.Name, 32)
		if c.ID == activeID {
			label = "▶ " + label
		}
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: label, CallbackData: cbConvSelect + c.ID},
			{Text: "🗑", CallbackData: cbConvDelete + c.ID},
		})
	}
	rows = append(rows, []gotgbot.InlineKeyboardButton{
		{Text: "New chat", CallbackData: cbNewChat},
		{Text: "Back to menu", CallbackData: cbMenu},
	})
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func keyKeyboard(p state.Provider, ps state.ProviderSettings) *gotgbot.InlineKeyboardMarkup {
	code := providerCode(p)
	rows := [][]gotgbot.InlineKeyboardButton{}
	for _, c := range ps.Credentials {
		if len(cbKeyDelete+code+":"+c.ID) > maxCallbackData {
			continue
		}
		use := "Use " + truncateRunes(c.Label, 24)
		if c.IsActive {
			use = "✓ " + truncateRunes(c.Label, 24)
		}
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: use, CallbackData: cbKeyUse + code + ":" + c.ID},
			{Text: "🗑", CallbackData: cbKeyDelete + code + ":" + c.ID},
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func providerKeyboard(active state.Provider) *gotgbot.InlineKeyboardMarkup {
	row := []gotgbot.InlineKeyboardButton{}
	for _, p := range state.Providers() {
		label := string(p)
		if p == active {
			label = "✓ " + label
		}
		row = append(row, gotgbot.InlineKeyboardButton{Text: label, CallbackData: cbProvider + providerCode(p)})
	}
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{row}}
}

func modelKeyboard(p state.Provider) *gotgbot.InlineKeyboardMarkup {
	rows := [][]gotgbot.InlineKeyboardButton{}
	for i, m := range state.TextModels(p) {
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: m, CallbackData: cbModel + providerCode(p) + ":" + strconv.Itoa(i)},
		})
	}
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func presetKeyboard(active state.Preset) *gotgbot.InlineKeyboardMarkup {
	rows := [][]gotgbot.InlineKeyboardButton{}
	for i, p := range state.Presets() {
		label := string(p)
		if p == active {
			label = "✓ " + label
		}
		rows = append(rows, []gotgbot.InlineKeyboardButton{{Text: label, CallbackData: cbPreset + strconv.Itoa(i)}})
	}
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func projectKeyboard(projects []state.CodeProject) *gotgbot.InlineKeyboardMarkup {
	rows := [][]gotgbot.InlineKeyboardButton{}
	for _, p := range projects {
		if len(cbProjectEdit+p.ID) > maxCallbackData {
			continue
		}
		rows = append(rows, []gotgbot.InlineKeyboardButton{
			{Text: truncateRunes(p.Name, 24), CallbackData: cbProjectShow + p.ID},
			{Text: "Edit", CallbackData: cbProjectEdit + p.ID},
			{Text: "🗑", CallbackData: cbProjectDel + p.ID},
		})
	}
	rows = append(rows, []gotgbot.InlineKeyboardButton{{Text: "Back to menu", CallbackData: cbMenu}})
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (s *Service) replyWithMarkup(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx == nil || ctx.EffectiveChat == nil {
		return nil
	}
	opts := &gotgbot.SendMessageOpts{}
	if markup != nil {
		opts.ReplyMarkup = *markup
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, opts)
	return err
}

func providerCode(p state.Provider) string {
	if p == state.ProviderOpenRouter {
		return "o"
	}
	return "g"
}

func providerFromCode(code string) (state.Provider, bool) {
	switch code {
	case "g":
		return state.ProviderGemini, true
	case "o":
		return state.ProviderOpenRouter, true
	}
	return "", false
}

func providerNames() string {
	names := []string{}
	for _, p := range state.Providers() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func presetNames() string {
	names := []string{}
	for _, p := range state.Presets() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func formatFloat(v *float64) string {
	if v == nil {
		return "provider default"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return "provider default"
	}
	return strconv.Itoa(*v)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
