package telegram

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "notifyrelay/pkg/logx"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	Token   string
	APIURL  string        // empty: tele.DefaultApiURL
	Timeout time.Duration // per request; 0 means 15s
}

// Bot is the fallback text channel.
type Bot struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:   strings.TrimSpace(cfg.Token),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{bot: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

// SetLogger replaces the bot logger. Call it before the bot is shared.
func (b *Bot) SetLogger(log logx.Logger) {
	if log.IsZero() {
		return
	}
	b.log = log.With(logx.String("comp", "telegram"))
}

// SendText sends text to chatID with link previews disabled and reports the
// result as an HTTP-like status. A nil error means 200. API errors carrying a
// code are returned as that code with a nil error so callers can retry on the
// status alone. Errors without a code (network, encoding) are returned as-is.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, err := b.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err == nil {
		return http.StatusOK, nil
	}
	if code, ok := statusOf(err); ok {
		b.log.Debug("sendMessage rejected", logx.Int64("chat_id", chatID), logx.Int("code", code), logx.Err(err))
		return code, nil
	}
	return 0, err
}

var trailingCode = regexp.MustCompile(`\((\d{3})\)$`)

func statusOf(err error) (int, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests, true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code, true
	}
	// Unrecognized API errors are formatted as "telegram: <description> (<code>)".
	if m := trailingCode.FindStringSubmatch(err.Error()); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code, true
		}
	}
	return 0, false
}
