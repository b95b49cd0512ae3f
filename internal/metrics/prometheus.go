package metrics

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	logx "notifyrelay/pkg/logx"
)

const namespace = "notifyrelay"

type Prometheus struct {
	cfg      Config
	log      logx.Logger
	registry *prometheus.Registry
	instance string

	attempts *prometheus.CounterVec
	pages    *prometheus.CounterVec
	gates    *prometheus.CounterVec
}

func NewPrometheus(cfg Config, log logx.Logger) (*Prometheus, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "metrics"))

	instance := cfg.InstanceLabel
	if instance == "" {
		h, err := os.Hostname()
		if err != nil {
			log.Warn("hostname unavailable for instance label", logx.Err(err))
			h = "unknown"
		}
		instance = h
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_attempts_total",
		Help:      "Send attempts per channel and result.",
	}, []string{"channel", "result"})
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_total",
		Help:      "Finished pages by outcome.",
	}, []string{"outcome"})
	gates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Gate admission decisions.",
	}, []string{"gate", "decision"})

	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{attempts, pages, gates} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return &Prometheus{
		cfg:      cfg,
		log:      log,
		registry: reg,
		instance: instance,
		attempts: attempts,
		pages:    pages,
		gates:    gates,
	}, nil
}

func (p *Prometheus) RecordAttempt(channel, result string) {
	p.attempts.WithLabelValues(channel, result).Inc()
}

func (p *Prometheus) RecordPage(outcome string) { p.pages.WithLabelValues(outcome).Inc() }

func (p *Prometheus) RecordGate(gate, decision string) {
	p.gates.WithLabelValues(gate, decision).Inc()
}

// Registry exposes the underlying registry for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) Push(ctx context.Context) error {
	if p.cfg.PushgatewayURL == "" {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := push.New(p.cfg.PushgatewayURL, p.cfg.JobName).
		Gatherer(p.registry).
		Grouping("instance", p.instance).
		PushContext(pctx)
	if err != nil {
		p.log.Error("metrics push failed", logx.Err(err), logx.String("url", maskURL(p.cfg.PushgatewayURL)))
		return nil
	}
	p.log.Debug("metrics pushed", logx.String("job", p.cfg.JobName), logx.String("instance", p.instance))
	return nil
}

func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("***")
	return u.String()
}
