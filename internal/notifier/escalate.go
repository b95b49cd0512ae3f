package notifier

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"notifyrelay/internal/metrics"
	kit "notifyrelay/internal/transport"
	logx "notifyrelay/pkg/logx"
)

// Escalator re-sends failed pages through the fallback channel.
type Escalator struct {
	fallback kit.Fallback
	resolver kit.Resolver
	limiter  *rate.Limiter
	log      logx.Logger
	metrics  metrics.Collector
}

// NewEscalator builds an escalator. resolver may be nil when every receiver
// carries a numeric id. ratePerSec <= 0 disables pacing.
func NewEscalator(fb kit.Fallback, resolver kit.Resolver, ratePerSec float64, log logx.Logger, m metrics.Collector) *Escalator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	e := &Escalator{
		fallback: fb,
		resolver: resolver,
		log:      log.With(logx.String("comp", "escalator")),
		metrics:  m,
	}
	if ratePerSec > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return e
}

// Escalate sends pages in order, each up to limit times. A symbolic receiver
// is resolved once and returned with its chat id filled in, so callers
// escalating page by page reuse it without another lookup. Exhausted pages
// are logged and skipped; only resolution errors and context cancellation
// are returned.
func (e *Escalator) Escalate(ctx context.Context, pages []Page, to kit.Receiver, limit int) (kit.Receiver, error) {
	if len(pages) == 0 {
		return to, nil
	}
	to, err := e.resolve(ctx, to)
	if err != nil {
		return to, err
	}
	for _, p := range pages {
		if err := e.sendPage(ctx, p, to.ID, limit); err != nil {
			return to, err
		}
	}
	return to, nil
}

func (e *Escalator) resolve(ctx context.Context, to kit.Receiver) (kit.Receiver, error) {
	if to.ID != 0 {
		return to, nil
	}
	if e.resolver == nil {
		return to, fmt.Errorf("%w: no resolver for %q", ErrResolution, to.Name)
	}
	id, err := e.resolver.Resolve(ctx, to.Name)
	if err != nil {
		return to, fmt.Errorf("%w: %q: %v", ErrResolution, to.Name, err)
	}
	to.ID = id
	return to, nil
}

func (e *Escalator) sendPage(ctx context.Context, p Page, chatID int64, limit int) error {
	if limit < 1 {
		limit = 1
	}
	text := p.FallbackText()
	for attempt := 1; attempt <= limit; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		code, err := e.fallback.SendText(ctx, chatID, text)
		switch {
		case err != nil:
			e.metrics.RecordAttempt(metrics.ChannelFallback, metrics.ResultError)
			e.log.Debug("fallback send failed", logx.Int("page", p.Index), logx.Int("attempt", attempt), logx.Err(err))
		case code == http.StatusOK:
			e.metrics.RecordAttempt(metrics.ChannelFallback, metrics.ResultAccepted)
			return nil
		default:
			e.metrics.RecordAttempt(metrics.ChannelFallback, metrics.ResultRejected)
			e.log.Debug("fallback rejected page", logx.Int("page", p.Index), logx.Int("attempt", attempt), logx.Int("status", code))
		}
	}
	e.log.Warn("page undeliverable on every channel",
		logx.Int("page", p.Index), logx.Int64("chat_id", chatID), logx.Int("attempts", limit))
	return nil
}
