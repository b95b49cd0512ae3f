// Package app wires configuration into a ready notifier.Service: logging,
// counting stores, the fallback bot, gates and metrics.
package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"notifyrelay/internal/config"
	"notifyrelay/internal/gate"
	"notifyrelay/internal/metrics"
	"notifyrelay/internal/notifier"
	"notifyrelay/internal/storage"
	kit "notifyrelay/internal/transport"
	"notifyrelay/internal/transport/primary"
	"notifyrelay/internal/transport/telegram"
	logx "notifyrelay/pkg/logx"
)

// Options override file settings from the command line.
type Options struct {
	LogLevel string
	DryRun   bool
}

type App struct {
	log  logx.Logger
	logs *logx.Service

	store          storage.Store
	thresholdStore storage.Store
	pruners        []*storage.Pruner

	bot      *telegram.Bot
	resolver *telegram.Resolver
	metrics  metrics.Collector

	mu  sync.RWMutex
	cfg *config.Config
	svc *notifier.Service

	closeOnce sync.Once
}

func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	cfg = applyOptions(cfg, opts)

	a := &App{cfg: cfg}

	// Fallback bot first: the log mirror sends through it.
	if cfg.FallbackEnabled() {
		timeout, err := config.ParseDurationOrDefault("fallback.timeout", cfg.Fallback.Timeout, 15*time.Second)
		if err != nil {
			return nil, err
		}
		bot, err := telegram.New(telegram.Config{
			Token:   cfg.Fallback.BotToken,
			APIURL:  cfg.Fallback.APIURL,
			Timeout: timeout,
		}, logx.Nop())
		if err != nil {
			return nil, err
		}
		a.bot = bot
	}

	var sender logx.TextSender
	if a.bot != nil {
		sender = a.bot
	}
	a.logs, a.log = logx.New(mapLogConfig(cfg), sender)
	if a.bot != nil {
		a.bot.SetLogger(a.log)
	}
	a.log = a.log.With(logx.String("comp", "app"))

	if err := a.openStores(cfg); err != nil {
		_ = a.closeStores()
		_ = a.logs.Close(context.Background())
		return nil, err
	}

	mc, err := metrics.New(mapMetricsConfig(cfg), a.log)
	if err != nil {
		_ = a.closeStores()
		_ = a.logs.Close(context.Background())
		return nil, err
	}
	a.metrics = mc

	if a.bot != nil {
		a.resolver = telegram.NewResolver(a.bot, a.store, a.log)
	}

	svc, err := a.buildService(cfg)
	if err != nil {
		_ = a.closeStores()
		_ = a.logs.Close(context.Background())
		return nil, err
	}
	a.svc = svc
	return a, nil
}

func applyOptions(cfg *config.Config, opts Options) *config.Config {
	c := *cfg
	if strings.TrimSpace(opts.LogLevel) != "" {
		c.Logging.Level = opts.LogLevel
	}
	if opts.DryRun {
		c.DryRun = true
	}
	return &c
}

func (a *App) openStores(cfg *config.Config) error {
	sc, err := mapStoreConfig("store", cfg.Store)
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, a.log)
	if err != nil {
		return err
	}
	a.store = st
	a.log.Info("store opened", logx.String("driver", sc.Driver))

	tc, err := mapStoreConfig("threshold_store", cfg.ThresholdStoreConfig())
	if err != nil {
		return err
	}
	if sameStore(sc, tc) {
		a.thresholdStore = st
	} else {
		ts, err := storage.Open(tc, a.log)
		if err != nil {
			return err
		}
		a.thresholdStore = ts
		a.log.Info("threshold store opened", logx.String("driver", tc.Driver))
	}

	if err := a.addPruner(a.store, sc.PruneSchedule); err != nil {
		return err
	}
	if a.thresholdStore != a.store {
		return a.addPruner(a.thresholdStore, tc.PruneSchedule)
	}
	return nil
}

func (a *App) addPruner(st storage.Store, schedule string) error {
	p, err := storage.NewPruner(st, schedule, a.log)
	if err != nil {
		return err
	}
	if p != nil {
		a.pruners = append(a.pruners, p)
	}
	return nil
}

func (a *App) buildService(cfg *config.Config) (*notifier.Service, error) {
	timeout, err := config.ParseDurationOrDefault("primary.timeout", cfg.Primary.Timeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	pc, err := primary.New(primary.Config{
		BaseURL:   cfg.Primary.URL,
		AuthToken: cfg.Primary.AuthToken,
		Timeout:   timeout,
	})
	if err != nil {
		return nil, err
	}

	deps := notifier.Deps{
		Primary:   pc,
		Threshold: gate.NewThreshold(a.thresholdStore, a.log),
		Metrics:   a.metrics,
		Log:       a.log,
	}
	if a.bot != nil {
		var res kit.Resolver
		if a.resolver != nil {
			res = a.resolver
		}
		deps.Escalator = notifier.NewEscalator(a.bot, res, cfg.Fallback.RatePerSec, a.log, a.metrics)
	}
	if cfg.Alerts.Dedup {
		delay, err := config.ParseDurationOrDefault("alerts.delay", cfg.Alerts.Delay, 5*time.Minute)
		if err != nil {
			return nil, err
		}
		deps.Alerts = gate.NewAlertDedup(a.store, delay, a.log)
	}

	return notifier.New(notifier.Config{
		Receiver:           kit.Receiver{ID: cfg.Receiver.ID, Name: cfg.Receiver.Name},
		RetryLimit:         cfg.Primary.RetryLimit,
		FallbackRetryLimit: cfg.Fallback.RetryLimit,
		MaxPageSize:        cfg.Paging.MaxSize,
		DryRun:             cfg.DryRun,
	}, deps)
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapMetricsConfig(cfg *config.Config) metrics.Config {
	timeout, err := config.ParseDurationOrDefault("metrics.timeout", cfg.Metrics.Timeout, 10*time.Second)
	if err != nil {
		timeout = 10 * time.Second
	}
	return metrics.Config{
		Enabled:        cfg.Metrics.Enabled,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		JobName:        cfg.Metrics.JobName,
		Timeout:        timeout,
		InstanceLabel:  cfg.Metrics.Instance,
	}
}

// Service returns the current pipeline. It changes after a successful Reload.
func (a *App) Service() *notifier.Service {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.svc
}

// Resolver is nil when no fallback bot is configured.
func (a *App) Resolver() *telegram.Resolver { return a.resolver }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Start launches background store maintenance.
func (a *App) Start() error {
	for _, p := range a.pruners {
		if err := p.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Reload applies a new config. Logging and the pipeline are rebuilt in place;
// store and bot changes are reported and take effect on restart.
func (a *App) Reload(cfg *config.Config, opts Options) error {
	cfg = applyOptions(cfg, opts)
	old := a.Config()
	for _, section := range config.SummarizeChange(old, cfg) {
		switch section {
		case "store", "threshold_store", "metrics":
			a.log.Warn("config section changed; restart required", logx.String("section", section))
		case "fallback":
			if old.FallbackEnabled() != cfg.FallbackEnabled() || old.Fallback.BotToken != cfg.Fallback.BotToken ||
				old.Fallback.APIURL != cfg.Fallback.APIURL || old.Fallback.Timeout != cfg.Fallback.Timeout {
				a.log.Warn("fallback bot settings changed; restart required")
			}
		}
	}

	a.logs.Apply(mapLogConfig(cfg))
	svc, err := a.buildService(cfg)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.svc = svc
	a.mu.Unlock()
	return nil
}

// Close stops pruners, pushes metrics and releases every resource. Safe to call twice.
func (a *App) Close(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		for _, p := range a.pruners {
			p.Stop(ctx)
		}
		_ = a.metrics.Push(ctx)
		err = a.closeStores()
		if n := a.logs.MirrorDropped(); n > 0 {
			a.log.Warn("telegram log mirror dropped records", logx.Int64("dropped", n))
		}
		if lerr := a.logs.Close(ctx); err == nil {
			err = lerr
		}
	})
	return err
}

func (a *App) closeStores() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.thresholdStore != nil && a.thresholdStore != a.store {
		errs = append(errs, a.thresholdStore.Close())
	}
	return errors.Join(errs...)
}
