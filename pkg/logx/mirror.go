package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TextSender is the part of the fallback channel the Telegram mirror needs.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

// Telegram rejects messages over 4096 characters.
const (
	mirrorQueue       = 128
	mirrorSendTimeout = 10 * time.Second
	mirrorMaxRunes    = 3500
	mirrorMaxValue    = 600
)

// mirror is a zerolog sink that forwards records to a chat. Records are
// filtered by level, rate limited and queued; a full queue drops the record
// so logging never blocks on the network.
type mirror struct {
	sender TextSender
	queue  chan string

	mu       sync.Mutex
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	dropped   atomic.Int64
}

func newMirror(sender TextSender) *mirror {
	return &mirror{sender: sender, queue: make(chan string, mirrorQueue), minLevel: zerolog.WarnLevel}
}

func (m *mirror) apply(cfg TelegramConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	m.mu.Lock()
	m.chatID = cfg.ChatID
	m.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	m.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	m.mu.Unlock()

	if cfg.Enabled {
		m.startOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			m.cancel = cancel
			m.wg.Add(1)
			go m.run(ctx)
		})
	}
}

func (m *mirror) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-m.queue:
			m.mu.Lock()
			chatID := m.chatID
			m.mu.Unlock()
			if chatID == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, mirrorSendTimeout)
			_, _ = m.sender.SendText(sctx, chatID, text)
			cancel()
		}
	}
}

// stop waits for queued records to go out, bounded by ctx.
func (m *mirror) stop(ctx context.Context) {
	if m.cancel == nil {
		return
	}
	for len(m.queue) > 0 && ctx.Err() == nil {
		time.Sleep(25 * time.Millisecond)
	}
	m.cancel()
	m.wg.Wait()
}

func (m *mirror) Write(p []byte) (int, error) { return m.WriteLevel(zerolog.InfoLevel, p) }

func (m *mirror) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	m.mu.Lock()
	allowed := level >= m.minLevel && m.limiter != nil && m.limiter.Allow()
	m.mu.Unlock()
	if !allowed {
		return len(p), nil
	}
	if text := mirrorText(p); text != "" {
		select {
		case m.queue <- text:
		default:
			m.dropped.Add(1)
		}
	}
	return len(p), nil
}

// mirrorText renders a JSON record as "[LEVEL] message" followed by one
// "- key=value" line per field in key order. Non-JSON input is passed through.
func mirrorText(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return clip(raw, mirrorMaxRunes)
	}

	var b strings.Builder
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), mirrorMaxValue))
	}
	return clip(b.String(), mirrorMaxRunes)
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n < 10 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
