package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kangsantri/internal/providers"
	"kangsantri/internal/state"
)

// Store is the slice of the application state the sender reads and writes.
type Store interface {
	ChatTarget() (state.Target, error)
	TargetFor(p state.Provider) (state.Target, error)
	Conversation(id string) (state.Conversation, bool)
	ActiveConversation() state.Conversation
	ReplaceMessages(id string, msgs []state.Message) error
	Preset() state.Preset
	Project(id string) (state.CodeProject, bool)
	AddProject(name, code string) string
	UpdateProject(id string, upd state.ProjectUpdate) error
	SetActiveEditing(id string)
}

// Clients builds provider clients for a resolved target.
type Clients interface {
	Chat(t state.Target) (providers.Provider, error)
	Images(t state.Target) (providers.ImageGenerator, error)
}

type Config struct {
	Store   Store
	Clients Clients
	Logger  zerolog.Logger
	Now     func() time.Time
	NewID   func() string
}

type Sender struct {
	store   Store
	clients Clients
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
}

func New(cfg Config) *Sender {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return "msg-" + uuid.NewString() }
	}
	return &Sender{
		store:   cfg.Store,
		clients: cfg.Clients,
		logger:  cfg.Logger,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
}

type SendRequest struct {
	// ConversationID selects the thread; empty means the active one.
	ConversationID string
	Text           string
	// Image is an optional data URL or bare base64 picture for this turn.
	Image string
}

type SendResult struct {
	ConversationID string
	Reply          state.Message
}

var ErrEmptyMessage = errors.New("message has neither text nor image")

// Send appends the user turn, calls the active provider and appends its reply.
// The message list captured at the start is the base for both writes, so a
// second Send racing on the same conversation overwrites this one's reply or
// is overwritten by it. Provider failures are stored as an "Error: ..." reply
// and also returned.
func (s *Sender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.Image) == "" {
		return SendResult{}, ErrEmptyMessage
	}

	conv, ok := s.conversation(req.ConversationID)
	if !ok {
		return SendResult{}, fmt.Errorf("conversation %q: %w", req.ConversationID, state.ErrNotFound)
	}
	base := conv.Messages

	user := state.Message{
		ID:        s.newID(),
		Text:      req.Text,
		Sender:    state.SenderUser,
		Timestamp: s.now(),
		ImageData: req.Image,
	}
	withUser := appendMessages(base, user)
	if err := s.store.ReplaceMessages(conv.ID, withUser); err != nil {
		return SendResult{}, err
	}

	reply, callErr := s.ask(ctx, req, base)
	if err := s.store.ReplaceMessages(conv.ID, appendMessages(withUser, reply)); err != nil {
		return SendResult{}, err
	}
	return SendResult{ConversationID: conv.ID, Reply: reply}, callErr
}

func (s *Sender) conversation(id string) (state.Conversation, bool) {
	if id == "" {
		return s.store.ActiveConversation(), true
	}
	return s.store.Conversation(id)
}

func (s *Sender) ask(ctx context.Context, req SendRequest, history []state.Message) (state.Message, error) {
	target, err := s.store.ChatTarget()
	if err != nil {
		return s.errorReply("", err), err
	}
	reply := state.Message{
		ID:       s.newID(),
		Sender:   state.SenderAI,
		Provider: target.Provider,
	}

	client, err := s.clients.Chat(target)
	if err != nil {
		return s.errorReply(target.Provider, err), err
	}

	params := target.Params
	if params.SystemPrompt == "" {
		params.SystemPrompt = s.store.Preset().Prompt()
	}
	chatReq := requestFrom(params, req.Text, history)
	if req.Image != "" {
		img, err := providers.ParseImage(req.Image)
		if err != nil {
			return s.errorReply(target.Provider, err), err
		}
		chatReq.Image = &img
	}

	started := time.Now()
	resp, err := client.Chat(ctx, chatReq)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", string(target.Provider)).Str("model", params.Model).
			Dur("elapsed", time.Since(started)).Msg("chat request failed")
		return s.errorReply(target.Provider, err), err
	}

	reply.Text = resp.Text + sourcesBlock(resp.Citations)
	reply.Model = params.Model
	reply.Timestamp = s.now()
	return reply, nil
}

func (s *Sender) errorReply(p state.Provider, err error) state.Message {
	return state.Message{
		ID:        s.newID(),
		Text:      "Error: " + providers.Describe(err),
		Sender:    state.SenderAI,
		Timestamp: s.now(),
		Provider:  p,
	}
}

func requestFrom(params state.ChatParams, prompt string, history []state.Message) providers.ChatRequest {
	turns := make([]providers.Turn, 0, len(history))
	for _, m := range history {
		role := providers.RoleUser
		if m.Sender == state.SenderAI {
			role = providers.RoleAssistant
		}
		turns = append(turns, providers.Turn{Role: role, Text: m.Text})
	}
	return providers.ChatRequest{
		Model:        params.Model,
		SystemPrompt: params.SystemPrompt,
		Prompt:       prompt,
		History:      turns,
		Temperature:  params.Temperature,
		TopP:         params.TopP,
		MaxTokens:    params.MaxTokens,
	}
}

func sourcesBlock(citations []providers.Citation) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nSources:")
	for _, c := range citations {
		title := c.Title
		if title == "" {
			title = "Unknown source"
		}
		fmt.Fprintf(&b, "\n- %s: %s", title, c.URI)
	}
	return b.String()
}

func appendMessages(base []state.Message, more ...state.Message) []state.Message {
	out := make([]state.Message, 0, len(base)+len(more))
	out = append(out, base...)
	return append(out, more...)
}
