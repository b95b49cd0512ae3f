package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"notifyrelay/internal/storage"
	kit "notifyrelay/internal/transport"
	logx "notifyrelay/pkg/logx"
)

var (
	// ErrNotFound is returned when no recent update mentions the group.
	ErrNotFound = errors.New("group not found in recent updates")
	// ErrCache wraps counting-store failures.
	ErrCache = errors.New("resolver cache unavailable")
)

const cachePrefix = "chat:"

// Resolver maps group names to chat ids. Hits are cached without expiry.
type Resolver struct {
	bot   *Bot
	cache storage.Store
	log   logx.Logger
}

func NewResolver(b *Bot, cache storage.Store, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{bot: b, cache: cache, log: log.With(logx.String("comp", "resolver"))}
}

type chatRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type updateEnvelope struct {
	MyChatMember *struct {
		Chat *chatRef `json:"chat"`
	} `json:"my_chat_member"`
	Message *struct {
		Chat *chatRef `json:"chat"`
	} `json:"message"`
}

func (u updateEnvelope) chat() *chatRef {
	if u.MyChatMember != nil {
		return u.MyChatMember.Chat
	}
	if u.Message != nil {
		return u.Message.Chat
	}
	return nil
}

// Resolve returns the chat id for name. It consults the cache first and on a
// miss polls getUpdates once.
func (r *Resolver) Resolve(ctx context.Context, name string) (int64, error) {
	norm := kit.NormalizeGroupName(name)
	if norm == "" {
		return 0, fmt.Errorf("empty group name: %w", ErrNotFound)
	}
	key := cachePrefix + norm

	if r.cache != nil {
		v, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCache, err)
		}
		if ok {
			if id, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				return id, nil
			}
			r.log.Warn("ignoring malformed cached chat id", logx.String("group", norm), logx.String("value", v))
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := r.bot.bot.Raw("getUpdates", map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("getUpdates: %w", err)
	}
	var resp struct {
		OK     bool             `json:"ok"`
		Result []updateEnvelope `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("getUpdates: decode: %w", err)
	}
	if !resp.OK {
		return 0, errors.New("getUpdates: not ok")
	}

	for _, u := range resp.Result {
		c := u.chat()
		if c == nil || kit.NormalizeGroupName(c.Title) != norm {
			continue
		}
		if r.cache != nil {
			if err := r.cache.SetEx(ctx, key, strconv.FormatInt(c.ID, 10), 0); err != nil {
				r.log.Warn("chat id cache write failed", logx.String("group", norm), logx.Err(err))
			}
		}
		r.log.Debug("group resolved", logx.String("group", norm), logx.Int64("chat_id", c.ID))
		return c.ID, nil
	}
	return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
}
