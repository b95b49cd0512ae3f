package notifier

import (
	"context"

	"notifyrelay/internal/metrics"
	kit "notifyrelay/internal/transport"
	logx "notifyrelay/pkg/logx"
)

// SendFunc delivers one page through the primary channel.
type SendFunc func(ctx context.Context, p Page) (kit.Outcome, error)

// Dispatcher retries a page against the primary channel.
type Dispatcher struct {
	log     logx.Logger
	metrics metrics.Collector
}

func NewDispatcher(log logx.Logger, m metrics.Collector) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Dispatcher{log: log.With(logx.String("comp", "dispatcher")), metrics: m}
}

// Dispatch calls send up to limit times (at least once) without delay and
// stops at the first accepted outcome. Transport errors count as failed
// attempts. The last observed outcome is returned; when every attempt errored
// the outcome has status 0. A cancelled ctx ends the attempt sequence early.
func (d *Dispatcher) Dispatch(ctx context.Context, p Page, send SendFunc, limit int) kit.Outcome {
	if limit < 1 {
		limit = 1
	}
	var (
		last    kit.Outcome
		lastErr error
	)
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			d.log.Debug("dispatch cancelled", logx.Int("page", p.Index), logx.Err(err))
			return last
		}
		out, err := send(ctx, p)
		if err != nil {
			lastErr = err
			d.metrics.RecordAttempt(metrics.ChannelPrimary, metrics.ResultError)
			d.log.Debug("primary send failed",
				logx.Int("page", p.Index), logx.Int("attempt", attempt), logx.Int("max", limit), logx.Err(err))
			continue
		}
		last, lastErr = out, nil
		if out.Accepted() {
			d.metrics.RecordAttempt(metrics.ChannelPrimary, metrics.ResultAccepted)
			return out
		}
		d.metrics.RecordAttempt(metrics.ChannelPrimary, metrics.ResultRejected)
		d.log.Debug("primary rejected page",
			logx.Int("page", p.Index), logx.Int("attempt", attempt), logx.Int("max", limit), logx.Int("status", out.StatusCode))
	}
	d.log.Warn("primary attempts exhausted",
		logx.Int("page", p.Index), logx.Int("attempts", limit), logx.Int("status", last.StatusCode), logx.Err(lastErr))
	return last
}
