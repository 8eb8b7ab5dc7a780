package telegram

import (
	"context"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/rs/zerolog"

	"kangsantri/internal/metrics"
	"kangsantri/internal/queue"
)

// Processor drops duplicate updates and anything not sent by the owner
// before handing the update to the dispatcher.
type Processor struct {
	Base          ext.BaseProcessor
	Dedupe        *queue.UpdateDeduplicator
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	AllowedUserID int64
}

func (p Processor) ProcessUpdate(d *ext.Dispatcher, b *gotgbot.Bot, ctx *ext.Context) error {
	if p.Metrics != nil {
		p.Metrics.UpdatesTotal.Inc()
	}
	if !p.allowed(ctx) {
		return nil
	}
	if p.Dedupe != nil {
		first, err := p.Dedupe.MarkFirst(context.Background(), ctx.UpdateId)
		if err != nil {
			p.Logger.Error().Err(err).Int64("update_id", ctx.UpdateId).Msg("failed to dedupe update")
		} else if !first {
			return nil
		}
	}
	return p.Base.ProcessUpdate(d, b, ctx)
}

func (p Processor) allowed(ctx *ext.Context) bool {
	if p.AllowedUserID == 0 {
		return true
	}
	if ctx == nil || ctx.EffectiveUser == nil {
		return false
	}
	if ctx.EffectiveUser.Id != p.AllowedUserID {
		p.Logger.Debug().Int64("user_id", ctx.EffectiveUser.Id).Msg("ignoring update from non-owner")
		return false
	}
	return true
}
