package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kangsantri/internal/chat"
	"kangsantri/internal/config"
	"kangsantri/internal/crypto"
	"kangsantri/internal/metrics"
	"kangsantri/internal/providers/registry"
	"kangsantri/internal/queue"
	"kangsantri/internal/state"
	"kangsantri/internal/storage"
	"kangsantri/internal/telegram"
	"kangsantri/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("state_backend", cfg.State.Backend).
		Bool("dev_polling", cfg.DevPolling).
		Bool("sealed_secrets", cfg.Crypto.Enabled()).
		Int64("owner_user_id", cfg.OwnerUserID).
		Msg("starting kangsantri")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	kv, closeKV, err := openKV(ctx, cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize state storage")
	}
	defer closeKV()

	var sealer state.SecretSealer
	if cfg.Crypto.Enabled() {
		cryptoManager, err := crypto.NewManager(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize crypto manager")
		}
		sealer = cryptoManager
	} else {
		log.Warn().Msg("no master key configured, API keys are stored unsealed")
	}

	m := metrics.Global()
	app, err := state.Open(ctx, state.Options{
		KV:           kv,
		Sealer:       sealer,
		Logger:       log.Logger.With().Str("component", "state").Logger(),
		Metrics:      m,
		DefaultTheme: state.Theme(cfg.State.DefaultTheme),
		SaveTimeout:  cfg.State.SaveTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load application state")
	}

	bot, err := gotgbot.NewBot(cfg.BotToken, nil)
	if err != nil {
		log.Fatal().Str("component", "telegram").Msg(telegram.SanitizeError(err, cfg.BotToken))
	}
	log.Info().Str("bot_username", bot.User.Username).Int64("bot_id", bot.User.Id).Msg("telegram bot initialized")

	httpClient := &http.Client{Timeout: cfg.HTTP.ClientTimeout}
	jobQueue := queue.NewStreamQueue(rdb, cfg.Redis.QueueStream, cfg.Redis.QueueGroup, cfg.Worker.ConsumerName, cfg.Redis.QueueBlock)

	errCh := make(chan error, 4)
	logTelegramErr := func(err error) {
		log.Error().Str("component", "telegram").Msg(telegram.SanitizeError(err, cfg.BotToken))
	}

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		MaxRoutines:      100,
		UnhandledErrFunc: logTelegramErr,
		Processor: telegram.Processor{
			Dedupe:        queue.NewUpdateDeduplicator(rdb, cfg.Redis.UpdateTTL),
			Metrics:       m,
			Logger:        log.Logger,
			AllowedUserID: cfg.OwnerUserID,
		},
	})
	service := telegram.NewService(telegram.Config{
		App:         app,
		Queue:       jobQueue,
		RateLimiter: queue.NewRateLimiter(rdb, cfg.Rate.PerHour),
		Redis:       rdb,
		HTTPClient:  httpClient,
		Logger:      log.Logger.With().Str("component", "telegram").Logger(),
		Metrics:     m,
		WizardTTL:   cfg.Redis.WizardTTL,
		BotToken:    cfg.BotToken,
	})
	service.Register(dispatcher)
	updater := ext.NewUpdater(dispatcher, &ext.UpdaterOpts{
		UnhandledErrFunc: logTelegramErr,
	})

	var webhookHandler http.HandlerFunc
	var webhookRoute string
	if cfg.DevPolling {
		if err := updater.StartPolling(bot, &ext.PollingOpts{
			EnableWebhookDeletion: true,
			DropPendingUpdates:    true,
			GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
				Timeout: 50,
				RequestOpts: &gotgbot.RequestOpts{
					Timeout: 60 * time.Second,
				},
			},
		}); err != nil {
			log.Fatal().Str("component", "telegram").Msg(telegram.SanitizeError(err, cfg.BotToken))
		}
		log.Info().Msg("polling mode started")
	} else {
		path := strings.Trim(cfg.Webhook.SecretPath, "/")
		if path == "" {
			path = "telegram"
		}
		if err := updater.AddWebhook(bot, path, &ext.AddWebhookOpts{SecretToken: cfg.Webhook.SecretToken}); err != nil {
			log.Fatal().Err(err).Msg("failed to configure webhook handler")
		}

		webhookURL := strings.TrimSuffix(cfg.Webhook.PublicURL, "/") + "/" + path
		if _, err := bot.SetWebhook(webhookURL, &gotgbot.SetWebhookOpts{
			DropPendingUpdates: false,
			SecretToken:        cfg.Webhook.SecretToken,
		}); err != nil {
			log.Fatal().Str("component", "telegram").Msg(telegram.SanitizeError(err, cfg.BotToken))
		}
		log.Info().Str("webhook_url", webhookURL).Msg("webhook registered")
		webhookRoute = "/" + path
		webhookHandler = updater.GetHandlerFunc("/")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Webhook.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(cfg.Webhook.MetricsPath, promhttp.Handler())
	if webhookHandler != nil {
		mux.HandleFunc(webhookRoute, webhookHandler)
	}
	httpServer := &http.Server{
		Addr:              cfg.Webhook.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Webhook.WebhookTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.Webhook.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sender := chat.New(chat.Config{
		Store: app,
		Clients: registry.Registry{
			GeminiBaseURL:     cfg.Providers.GeminiBaseURL,
			OpenRouterBaseURL: cfg.Providers.OpenRouterBaseURL,
			SiteURL:           cfg.Providers.SiteURL,
			SiteName:          cfg.Providers.SiteName,
			HTTPClient:        httpClient,
		},
		Logger: log.Logger.With().Str("component", "chat").Logger(),
	})
	w := worker.New(worker.Config{
		Queue:      jobQueue,
		Runner:     sender,
		Notifier:   telegram.NewNotifier(bot),
		Projects:   app,
		JobTimeout: cfg.Worker.JobTimeout,
		Logger:     log.Logger.With().Str("component", "worker").Logger(),
		Metrics:    m,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("worker failed: %w", err)
		}
	}()
	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := updater.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop updater")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("worker did not stop in time")
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush application state")
	}

	log.Info().Msg("stopped")
}

// openKV picks the persistence backend for the application state.
func openKV(ctx context.Context, cfg *config.Config, rdb *redis.Client) (state.KV, func(), error) {
	switch cfg.State.Backend {
	case config.BackendRedis:
		return storage.NewRedisKV(rdb, cfg.State.KeyPrefix), func() {}, nil
	case config.BackendMemory:
		log.Warn().Msg("memory state backend: nothing survives a restart")
		return storage.NewMemoryKV(), func() {}, nil
	default:
		store, err := storage.Open(ctx, cfg.State.Backend, cfg.State.DSN, cfg.State.AutoMigrate)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
