package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notifyrelay/internal/storage"
	kit "notifyrelay/internal/transport"
	logx "notifyrelay/pkg/logx"
)

// Threshold gates templates that have a configured ThresholdSetting.
type Threshold struct {
	store storage.Store
	log   logx.Logger
	newID func() string
}

func NewThreshold(store storage.Store, log logx.Logger) *Threshold {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Threshold{
		store: store,
		log:   log.With(logx.String("comp", "gate.threshold")),
		newID: uuid.NewString,
	}
}

// Configure stores (or overwrites) the setting for s.Message. The setting never expires.
func (g *Threshold) Configure(ctx context.Context, s kit.ThresholdSetting) error {
	if strings.TrimSpace(s.Message) == "" {
		return errors.New("threshold message is empty")
	}
	if s.Count < 1 {
		return errors.New("threshold count must be >= 1")
	}
	if s.Window < time.Second {
		return errors.New("threshold window must be >= 1s")
	}
	b, err := json.Marshal(Setting{Count: s.Count, WindowSeconds: int64(s.Window / time.Second)})
	if err != nil {
		return err
	}
	if err := g.store.SetEx(ctx, settingKey(s.Message), string(b), 0); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	g.log.Info("threshold configured", logx.Int("count", s.Count), logx.Duration("window", s.Window))
	return nil
}

// Setting returns the setting for template, ok=false when none is configured.
func (g *Threshold) Setting(ctx context.Context, template string) (kit.ThresholdSetting, bool, error) {
	raw, ok, err := g.store.Get(ctx, settingKey(template))
	if err != nil {
		return kit.ThresholdSetting{}, false, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if !ok {
		return kit.ThresholdSetting{}, false, nil
	}
	var s Setting
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return kit.ThresholdSetting{}, false, fmt.Errorf("decode threshold setting: %w", err)
	}
	return kit.ThresholdSetting{
		Message: template,
		Count:   s.Count,
		Window:  time.Duration(s.WindowSeconds) * time.Second,
	}, true, nil
}

// Admit records one send of template for receiver and decides whether to forward it.
//
// Unconfigured templates are always forwarded unchanged. Configured templates
// add one counter entry that expires after the window, then forward (annotated
// with the live count) once count_limit entries are live, clearing them.
func (g *Threshold) Admit(ctx context.Context, template string, receiver kit.Receiver) (Decision, error) {
	s, ok, err := g.Setting(ctx, template)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Forward: true, Text: template}, nil
	}

	prefix := counterPrefix(template, receiver.String())
	if err := g.store.SetEx(ctx, prefix+g.newID(), "1", s.Window); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	live, err := g.store.CountPrefix(ctx, prefix)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if live < s.Count {
		g.log.Debug("below threshold", logx.Int("live", live), logx.Int("limit", s.Count))
		return Decision{Count: int64(live)}, nil
	}
	if _, err := g.store.DeletePrefix(ctx, prefix); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return Decision{Forward: true, Text: withCount(template, int64(live)), Count: int64(live)}, nil
}
