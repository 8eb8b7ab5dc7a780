package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kangsantri/internal/chat"
	"kangsantri/internal/metrics"
	"kangsantri/internal/providers"
	"kangsantri/internal/queue"
	"kangsantri/internal/state"
)

// Runner executes AI requests against the application state.
type Runner interface {
	Send(ctx context.Context, req chat.SendRequest) (chat.SendResult, error)
	GenerateCode(ctx context.Context, req chat.CodeRequest) (chat.CodeResult, error)
	GenerateImages(ctx context.Context, req chat.ImageRequest) ([]string, error)
}

// Notifier delivers results back to the owner.
type Notifier interface {
	SendText(ctx context.Context, chatID, replyTo int64, text string) error
	SendCode(ctx context.Context, chatID, replyTo int64, name, code string) error
	SendImages(ctx context.Context, chatID, replyTo int64, images []string) error
}

type Projects interface {
	Project(id string) (state.CodeProject, bool)
}

type Worker struct {
	queue    *queue.StreamQueue
	runner   Runner
	notifier Notifier
	projects Projects
	timeout  time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

type Config struct {
	Queue    *queue.StreamQueue
	Runner   Runner
	Notifier Notifier
	Projects Projects
	// JobTimeout bounds one provider round trip.
	JobTimeout time.Duration
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	return &Worker{
		queue:    cfg.Queue,
		runner:   cfg.Runner,
		notifier: cfg.Notifier,
		projects: cfg.Projects,
		timeout:  cfg.JobTimeout,
		logger:   cfg.Logger,
		metrics:  m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// consumeLoop runs jobs one at a time. Every job is acked whatever its
// outcome; failures are reported to the owner and never retried.
func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read queue")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, msg := range messages {
			if err := w.processJob(ctx, msg.Job); err != nil {
				w.metrics.FailedJobs.Inc()
				log.Error().Err(err).Str("job_id", msg.Job.JobID).Str("kind", string(msg.Job.Kind)).Msg("job failed")
			} else {
				w.metrics.ProcessedJobs.Inc()
			}
			if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
				log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
			}
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.Job) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	switch job.Kind {
	case queue.KindChat, "":
		return w.runChat(jobCtx, ctx, job)
	case queue.KindCode:
		return w.runCode(jobCtx, ctx, job)
	case queue.KindImage:
		return w.runImages(jobCtx, ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// Replies go out on the parent context so a timed-out provider call can
// still be reported.
func (w *Worker) runChat(jobCtx, ctx context.Context, job queue.Job) error {
	res, err := w.runner.Send(jobCtx, chat.SendRequest{
		ConversationID: job.ConversationID,
		Text:           job.Text,
		Image:          job.Image,
	})
	if res.Reply.Text == "" {
		if err == nil {
			err = errors.New("empty reply")
		}
		return errors.Join(err, w.reportError(ctx, job, err))
	}
	if sendErr := w.notifier.SendText(ctx, job.ChatID, job.MessageID, res.Reply.Text); sendErr != nil {
		return errors.Join(err, fmt.Errorf("send reply: %w", sendErr))
	}
	return err
}

func (w *Worker) runCode(jobCtx, ctx context.Context, job queue.Job) error {
	provider, _ := state.ParseProvider(job.Provider)
	res, err := w.runner.GenerateCode(jobCtx, chat.CodeRequest{
		Instruction: job.Text,
		ProjectID:   job.ProjectID,
		Provider:    provider,
		Model:       job.Model,
	})
	if err != nil {
		return errors.Join(err, w.reportError(ctx, job, err))
	}

	name := chat.ProjectName(job.Text)
	if w.projects != nil {
		if p, ok := w.projects.Project(res.ProjectID); ok {
			name = p.Name
		}
	}
	if err := w.notifier.SendCode(ctx, job.ChatID, job.MessageID, name, res.Code); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

func (w *Worker) runImages(jobCtx, ctx context.Context, job queue.Job) error {
	images, err := w.runner.GenerateImages(jobCtx, chat.ImageRequest{
		Prompt: job.Text,
		Count:  job.Count,
		Model:  job.Model,
	})
	if err != nil {
		return errors.Join(err, w.reportError(ctx, job, err))
	}
	if err := w.notifier.SendImages(ctx, job.ChatID, job.MessageID, images); err != nil {
		return fmt.Errorf("send images: %w", err)
	}
	return nil
}

func (w *Worker) reportError(ctx context.Context, job queue.Job, cause error) error {
	text := "Error: " + providers.Describe(cause)
	if errors.Is(cause, state.ErrMissingCredential) {
		text += "\nAdd one with /addkey."
	}
	if err := w.notifier.SendText(ctx, job.ChatID, job.MessageID, strings.TrimSpace(text)); err != nil {
		return fmt.Errorf("send error: %w", err)
	}
	return nil
}
