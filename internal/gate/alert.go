package gate

import (
	"context"
	"fmt"
	"time"

	"notifyrelay/internal/storage"
	kit "notifyrelay/internal/transport"
	logx "notifyrelay/pkg/logx"
)

// AlertDedup forwards a given alert text at most once per delay and receiver.
type AlertDedup struct {
	store storage.Store
	delay time.Duration
	log   logx.Logger
}

func NewAlertDedup(store storage.Store, delay time.Duration, log logx.Logger) *AlertDedup {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &AlertDedup{store: store, delay: delay, log: log.With(logx.String("comp", "gate.alert"))}
}

// Admit counts one occurrence of text. When no "already notified" marker is
// live it forwards the text annotated with the count, sets the marker for the
// delay and resets the counter.
func (g *AlertDedup) Admit(ctx context.Context, text string, receiver kit.Receiver) (Decision, error) {
	key := alertKey(text, receiver.String())
	n, err := g.store.Incr(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	_, notified, err := g.store.Get(ctx, markerKey(key))
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if notified {
		g.log.Debug("alert suppressed", logx.Int64("count", n))
		return Decision{Count: n}, nil
	}
	if err := g.store.SetEx(ctx, markerKey(key), "true", g.delay); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := g.store.SetEx(ctx, key, "0", 0); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return Decision{Forward: true, Text: withCount(text, n), Count: n}, nil
}
