package metrics

import (
	"context"

	logx "notifyrelay/pkg/logx"
)

// New returns a Prometheus collector when enabled, Nop otherwise.
func New(cfg Config, log logx.Logger) (Collector, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewPrometheus(cfg, log)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAttempt(string, string) {}
func (Nop) RecordPage(string)            {}
func (Nop) RecordGate(string, string)    {}
func (Nop) Push(context.Context) error   { return nil }
