package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notifyrelay/internal/gate"
	"notifyrelay/internal/metrics"
	kit "notifyrelay/internal/transport"
	logx "notifyrelay/pkg/logx"
)

const (
	DefaultRetryLimit         = 5
	DefaultFallbackRetryLimit = 5
	DefaultMaxPageSize        = 3000
)

// Config is the explicit replacement for process-wide settings.
type Config struct {
	Receiver           kit.Receiver
	RetryLimit         int // primary attempts per page
	FallbackRetryLimit int // fallback attempts per failed page
	MaxPageSize        int // characters
	// DryRun logs pages instead of sending them. Gates are skipped.
	DryRun bool
}

func (c Config) withDefaults() Config {
	if c.RetryLimit <= 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.FallbackRetryLimit <= 0 {
		c.FallbackRetryLimit = DefaultFallbackRetryLimit
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = DefaultMaxPageSize
	}
	return c
}

// Deps are the collaborators of a Service. Only Primary is required.
type Deps struct {
	Primary   kit.Primary
	Escalator *Escalator
	Threshold *gate.Threshold
	Alerts    *gate.AlertDedup
	Metrics   metrics.Collector
	Log       logx.Logger
}

// Result summarizes one send.
type Result struct {
	Pages int
	// Last is the final primary outcome of the last page.
	Last kit.Outcome
	// Escalated lists the indices of pages handed to the fallback channel.
	Escalated []int
	// Suppressed is set when a gate held the message back.
	Suppressed bool
}

// Service is the delivery pipeline. A Service is safe for concurrent use;
// each call runs synchronously on the caller's goroutine.
type Service struct {
	cfg       Config
	primary   kit.Primary
	dispatch  *Dispatcher
	escalator *Escalator
	threshold *gate.Threshold
	alerts    *gate.AlertDedup
	metrics   metrics.Collector
	log       logx.Logger
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Primary == nil {
		return nil, fmt.Errorf("%w: primary channel is required", ErrConfiguration)
	}
	if cfg.Receiver.IsZero() {
		return nil, fmt.Errorf("%w: receiver is required", ErrConfiguration)
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		cfg:       cfg.withDefaults(),
		primary:   deps.Primary,
		dispatch:  NewDispatcher(log, m),
		escalator: deps.Escalator,
		threshold: deps.Threshold,
		alerts:    deps.Alerts,
		metrics:   m,
		log:       log.With(logx.String("comp", "notifier"), logx.String("receiver", cfg.Receiver.String())),
	}, nil
}

// SendMessage delivers msg through /send_message.
func (s *Service) SendMessage(ctx context.Context, msg string, amend kit.Amendment, emergency string) (Result, error) {
	return s.deliver(ctx, "message", msg, amend, emergency, s.primary.SendMessage)
}

// SendThreshold delivers msg through /send_message_threshold. The server's
// queued flag is reported in Result.Last but does not affect acceptance.
func (s *Service) SendThreshold(ctx context.Context, msg string, amend kit.Amendment, emergency string) (Result, error) {
	return s.deliver(ctx, "threshold", msg, amend, emergency, s.primary.SendThreshold)
}

// SendAlert delivers msg through /send_alert. With an alert deduplicator
// attached, repeats inside the alert delay are suppressed.
func (s *Service) SendAlert(ctx context.Context, msg string, amend kit.Amendment, emergency string) (Result, error) {
	if s.alerts != nil && !s.cfg.DryRun {
		d, err := s.alerts.Admit(ctx, msg, s.cfg.Receiver)
		if err != nil {
			return Result{}, err
		}
		if !s.recordGate(metrics.GateAlert, d) {
			s.log.Debug("alert suppressed", logx.Int64("count", d.Count))
			return Result{Suppressed: true}, nil
		}
		msg = d.Text
	}
	return s.deliver(ctx, "alert", msg, amend, emergency, s.primary.SendAlert)
}

// SendGated passes template through the local threshold gate and forwards it
// through /send_message once admitted.
func (s *Service) SendGated(ctx context.Context, template string, amend kit.Amendment, emergency string) (Result, error) {
	if s.threshold == nil {
		return Result{}, fmt.Errorf("%w: threshold store is not configured", ErrConfiguration)
	}
	msg := template
	if !s.cfg.DryRun {
		d, err := s.threshold.Admit(ctx, template, s.cfg.Receiver)
		if err != nil {
			return Result{}, err
		}
		if !s.recordGate(metrics.GateThreshold, d) {
			s.log.Debug("below threshold", logx.Int64("live", d.Count))
			return Result{Suppressed: true}, nil
		}
		msg = d.Text
	}
	return s.deliver(ctx, "message", msg, amend, emergency, s.primary.SendMessage)
}

// SetThreshold configures the server-side threshold and returns its status code.
func (s *Service) SetThreshold(ctx context.Context, setting kit.ThresholdSetting) (int, error) {
	if strings.TrimSpace(setting.Message) == "" {
		return 0, fmt.Errorf("%w: threshold message is empty", ErrConfiguration)
	}
	if s.cfg.DryRun {
		s.log.Info("dry run: set threshold", logx.String("message", setting.Message),
			logx.Int("count", setting.Count), logx.Duration("window", setting.Window))
		return 0, nil
	}
	return s.primary.SetThreshold(ctx, setting)
}

// ConfigureGate stores a local threshold setting used by SendGated.
func (s *Service) ConfigureGate(ctx context.Context, setting kit.ThresholdSetting) error {
	if s.threshold == nil {
		return fmt.Errorf("%w: threshold store is not configured", ErrConfiguration)
	}
	return s.threshold.Configure(ctx, setting)
}

func (s *Service) recordGate(name string, d gate.Decision) bool {
	if d.Forward {
		s.metrics.RecordGate(name, metrics.DecisionForward)
	} else {
		s.metrics.RecordGate(name, metrics.DecisionSuppress)
	}
	return d.Forward
}

type channelSend func(ctx context.Context, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error)

func (s *Service) deliver(ctx context.Context, kind, msg string, amend kit.Amendment, emergency string, call channelSend) (Result, error) {
	pages, err := Paginate(msg, s.cfg.MaxPageSize, amend, emergency)
	if err != nil {
		return Result{}, err
	}
	res := Result{Pages: len(pages)}
	log := s.log.With(logx.String("kind", kind), logx.Int("pages", len(pages)))

	if s.cfg.DryRun {
		for _, p := range pages {
			log.Info("dry run: page not sent", logx.Int("page", p.Index), logx.String("text", p.Text()), logx.String("amend", p.Amend.Render()))
			s.metrics.RecordPage(metrics.PageDryRun)
		}
		return res, nil
	}

	to := s.cfg.Receiver
	send := func(ctx context.Context, p Page) (kit.Outcome, error) {
		return call(ctx, to, p.Text(), p.Amend)
	}

	fallbackTo := to
	for _, p := range pages {
		out := s.dispatch.Dispatch(ctx, p, send, s.cfg.RetryLimit)
		res.Last = out
		if out.Accepted() {
			s.metrics.RecordPage(metrics.PageDelivered)
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.metrics.RecordPage(metrics.PageEscalated)
		res.Escalated = append(res.Escalated, p.Index)
		if s.escalator == nil {
			log.Warn("page rejected by primary and no fallback configured",
				logx.Int("page", p.Index), logx.Int("status", out.StatusCode))
			continue
		}
		log.Info("escalating page to fallback", logx.Int("page", p.Index), logx.Int("status", out.StatusCode))
		fallbackTo, err = s.escalator.Escalate(ctx, []Page{p}, fallbackTo, s.cfg.FallbackRetryLimit)
		if err != nil {
			if errors.Is(err, ErrResolution) {
				log.Error("fallback receiver unresolved", logx.Err(err))
			}
			return res, err
		}
	}
	return res, nil
}
