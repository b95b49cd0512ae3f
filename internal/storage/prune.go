package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "notifyrelay/pkg/logx"
)

// Pruner runs Sweeper.PruneExpired on a cron schedule.
type Pruner struct {
	sw   Sweeper
	log  logx.Logger
	spec string

	mu sync.Mutex
	c  *cron.Cron
}

var pruneParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewPruner returns a pruner for st, or nil when st has native expiry or
// schedule is empty.
func NewPruner(st Store, schedule string, log logx.Logger) (*Pruner, error) {
	schedule = strings.TrimSpace(schedule)
	sw, ok := st.(Sweeper)
	if !ok || schedule == "" {
		return nil, nil
	}
	if _, err := pruneParser.Parse(schedule); err != nil {
		return nil, errors.New("invalid prune schedule: " + err.Error())
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pruner{sw: sw, spec: schedule, log: log.With(logx.String("comp", "storage.prune"))}, nil
}

func (p *Pruner) Start() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return nil
	}
	c := cron.New(cron.WithParser(pruneParser))
	if _, err := c.AddFunc(p.spec, p.RunOnce); err != nil {
		return err
	}
	c.Start()
	p.c = c
	p.log.Debug("pruner started", logx.String("schedule", p.spec))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (p *Pruner) Stop(ctx context.Context) {
	if p == nil {
		return
	}
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep.
func (p *Pruner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := p.sw.PruneExpired(ctx)
	if err != nil {
		p.log.Warn("prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		p.log.Debug("pruned expired keys", logx.Int("removed", n))
	}
}
