package transport

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Receiver identifies a destination chat. Exactly one of ID or Name is set.
// Name is a group title that must be resolved to an ID for the fallback channel.
type Receiver struct {
	ID   int64
	Name string
}

func (r Receiver) IsZero() bool { return r.ID == 0 && strings.TrimSpace(r.Name) == "" }

// String is the stable form used in store keys.
func (r Receiver) String() string {
	if r.ID != 0 {
		return fmt.Sprintf("%d", r.ID)
	}
	return NormalizeGroupName(r.Name)
}

// NormalizeGroupName trims, lowercases and strips spaces from a group title.
func NormalizeGroupName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "")
}

// Amendment is the structured key/value payload attached to the first page.
type Amendment map[string]any

// Render formats the amendment for channels without a structured field,
// e.g. {host: db1, port: 5432}. Keys are sorted so the output is stable.
func (a Amendment) Render() string {
	if len(a) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fmt.Sprint(a[k]))
	}
	b.WriteString("}")
	return b.String()
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	StatusCode int
	// Queued is set only by threshold sends; it reports whether the server
	// queued the message. It never affects Accepted.
	Queued *bool
}

func (o Outcome) Accepted() bool { return o.StatusCode == http.StatusOK }

// ThresholdSetting gates how often a message template may be forwarded.
type ThresholdSetting struct {
	Message string
	Count   int
	Window  time.Duration
}

// Primary is the queueing delivery server.
type Primary interface {
	SendAlert(ctx context.Context, to Receiver, text string, amend Amendment) (Outcome, error)
	SendMessage(ctx context.Context, to Receiver, text string, amend Amendment) (Outcome, error)
	SendThreshold(ctx context.Context, to Receiver, text string, amend Amendment) (Outcome, error)
	SetThreshold(ctx context.Context, s ThresholdSetting) (int, error)
}

// Fallback is the direct bot channel. It returns the HTTP-equivalent status code.
type Fallback interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

// Resolver maps a group name to a chat id.
type Resolver interface {
	Resolve(ctx context.Context, name string) (int64, error)
}
