package notifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	kit "notifyrelay/internal/transport"
)

var errNetwork = errors.New("connection reset")

// fakePrimary answers every call through respond and records what it saw.
type fakePrimary struct {
	mu      sync.Mutex
	calls   []primaryCall
	respond func(endpoint, text string) (kit.Outcome, error)
}

type primaryCall struct {
	endpoint string
	to       kit.Receiver
	text     string
	amend    kit.Amendment
}

func okPrimary() *fakePrimary {
	return &fakePrimary{respond: func(string, string) (kit.Outcome, error) {
		return kit.Outcome{StatusCode: http.StatusOK}, nil
	}}
}

func (f *fakePrimary) record(endpoint string, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, primaryCall{endpoint: endpoint, to: to, text: text, amend: amend})
	f.mu.Unlock()
	return f.respond(endpoint, text)
}

func (f *fakePrimary) SendAlert(_ context.Context, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error) {
	return f.record("/send_alert", to, text, amend)
}

func (f *fakePrimary) SendMessage(_ context.Context, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error) {
	return f.record("/send_message", to, text, amend)
}

func (f *fakePrimary) SendThreshold(_ context.Context, to kit.Receiver, text string, amend kit.Amendment) (kit.Outcome, error) {
	return f.record("/send_message_threshold", to, text, amend)
}

func (f *fakePrimary) SetThreshold(_ context.Context, s kit.ThresholdSetting) (int, error) {
	out, err := f.record("/set_sending_threshold", kit.Receiver{}, s.Message, nil)
	return out.StatusCode, err
}

func (f *fakePrimary) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.text)
	}
	return out
}

// fakeFallback records sends and answers with code.
type fakeFallback struct {
	mu    sync.Mutex
	sent  []fallbackCall
	codes []int // consumed per call; the last one repeats
	err   error
}

type fallbackCall struct {
	chatID int64
	text   string
}

func (f *fakeFallback) SendText(_ context.Context, chatID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fallbackCall{chatID: chatID, text: text})
	if f.err != nil {
		return 0, f.err
	}
	code := http.StatusOK
	if len(f.codes) > 0 {
		code = f.codes[0]
		if len(f.codes) > 1 {
			f.codes = f.codes[1:]
		}
	}
	return code, nil
}

func (f *fakeFallback) pagesSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		// "message: <body>\n#N\n amend: ..."
		i := strings.LastIndex(c.text, "\n#")
		j := strings.Index(c.text[i+2:], "\n")
		out = append(out, c.text[i+2:i+2+j])
	}
	return out
}

type fakeResolver struct {
	id    int64
	err   error
	calls int
}

func (r *fakeResolver) Resolve(context.Context, string) (int64, error) {
	r.calls++
	return r.id, r.err
}
