package telegram

import (
	"net/http"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kangsantri/internal/metrics"
	"kangsantri/internal/queue"
	"kangsantri/internal/state"
)

type Service struct {
	app         *state.App
	queue       *queue.StreamQueue
	rateLimiter *queue.RateLimiter
	wizard      *wizardStore
	httpClient  *http.Client
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	botToken    string
}

type Config struct {
	App         *state.App
	Queue       *queue.StreamQueue
	RateLimiter *queue.RateLimiter
	Redis       *redis.Client
	HTTPClient  *http.Client
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	WizardTTL   time.Duration
	// BotToken is only used to redact itself from logged errors.
	BotToken string
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.WizardTTL <= 0 {
		cfg.WizardTTL = 20 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		app:         cfg.App,
		queue:       cfg.Queue,
		rateLimiter: cfg.RateLimiter,
		wizard:      newWizardStore(cfg.Redis, cfg.WizardTTL),
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
		metrics:     m,
		botToken:    cfg.BotToken,
	}
}

func (s *Service) Register(d *ext.Dispatcher) {
	d.AddHandler(handlers.NewCommand("start", s.start))
	d.AddHandler(handlers.NewCommand("help", s.help))
	d.AddHandler(handlers.NewCommand("menu", s.menu))
	d.AddHandler(handlers.NewCommand("status", s.status))
	d.AddHandler(handlers.NewCommand("cancel", s.cancelWizard))

	d.AddHandler(handlers.NewCommand("new", s.newConversation))
	d.AddHandler(handlers.NewCommand("chats", s.listConversations))
	d.AddHandler(handlers.NewCommand("rename", s.renameConversation))
	d.AddHandler(handlers.NewCommand("delete", s.deleteConversation))
	d.AddHandler(handlers.NewCommand("history", s.history))

	d.AddHandler(handlers.NewCommand("addkey", s.addKey))
	d.AddHandler(handlers.NewCommand("keys", s.listKeys))
	d.AddHandler(handlers.NewCommand("usekey", s.useKey))
	d.AddHandler(handlers.NewCommand("delkey", s.deleteKey))
	d.AddHandler(handlers.NewCommand("renamekey", s.renameKey))
	d.AddHandler(handlers.NewCommand("rekey", s.replaceKey))

	d.AddHandler(handlers.NewCommand("provider", s.provider))
	d.AddHandler(handlers.NewCommand("model", s.model))
	d.AddHandler(handlers.NewCommand("defaultmodel", s.defaultModel))
	d.AddHandler(handlers.NewCommand("endpoint", s.endpoint))
	d.AddHandler(handlers.NewCommand("params", s.params))
	d.AddHandler(handlers.NewCommand("system", s.systemPrompt))
	d.AddHandler(handlers.NewCommand("preset", s.preset))
	d.AddHandler(handlers.NewCommand("theme", s.theme))

	d.AddHandler(handlers.NewCommand("projects", s.listProjects))
	d.AddHandler(handlers.NewCommand("project", s.showProject))
	d.AddHandler(handlers.NewCommand("edit", s.editProject))
	d.AddHandler(handlers.NewCommand("delproject", s.deleteProject))
	d.AddHandler(handlers.NewCommand("code", s.code))
	d.AddHandler(handlers.NewCommand("newcode", s.newCode))
	d.AddHandler(handlers.NewCommand("imagine", s.imagine))

	d.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbPrefix), s.onCallback))
	d.AddHandler(handlers.NewMessage(func(msg *gotgbot.Message) bool {
		return message.Private(msg) && message.Photo(msg)
	}, s.privatePhoto))
	d.AddHandler(handlers.NewMessage(func(msg *gotgbot.Message) bool {
		return message.Private(msg) && message.Text(msg)
	}, s.privateText))
}

func (s *Service) now() time.Time {
	return time.Now().UTC()
}
