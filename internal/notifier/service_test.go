package notifier

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyrelay/internal/gate"
	"notifyrelay/internal/storage"
	kit "notifyrelay/internal/transport"
	logx "notifyrelay/pkg/logx"
)

var group = kit.Receiver{ID: -100}

func newService(t *testing.T, cfg Config, deps Deps) *Service {
	t.Helper()
	if cfg.Receiver.IsZero() {
		cfg.Receiver = group
	}
	deps.Log = logx.Nop()
	s, err := New(cfg, deps)
	require.NoError(t, err)
	return s
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Receiver: group}, Deps{})
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = New(Config{}, Deps{Primary: okPrimary()})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestSendMessageDelivered(t *testing.T) {
	p := okPrimary()
	fb := &fakeFallback{}
	s := newService(t, Config{}, Deps{Primary: p, Escalator: NewEscalator(fb, nil, 0, logx.Nop(), nil)})

	res, err := s.SendMessage(context.Background(), "hello", kit.Amendment{"a": 1}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.True(t, res.Last.Accepted())
	assert.Empty(t, res.Escalated)
	assert.Empty(t, fb.sent)

	require.Len(t, p.calls, 1)
	assert.Equal(t, "/send_message", p.calls[0].endpoint)
	assert.Equal(t, "hello\n#1\n", p.calls[0].text)
	assert.Equal(t, kit.Amendment{"a": 1}, p.calls[0].amend)
	assert.Equal(t, group, p.calls[0].to)
}

func TestOnlyFailedPageIsEscalated(t *testing.T) {
	p := &fakePrimary{respond: func(_ string, text string) (kit.Outcome, error) {
		if strings.HasSuffix(text, "\n#2\n") {
			return kit.Outcome{StatusCode: http.StatusInternalServerError}, nil
		}
		return kit.Outcome{StatusCode: http.StatusOK}, nil
	}}
	fb := &fakeFallback{}
	s := newService(t, Config{MaxPageSize: 3000, RetryLimit: 3, FallbackRetryLimit: 2},
		Deps{Primary: p, Escalator: NewEscalator(fb, nil, 0, logx.Nop(), nil)})

	res, err := s.SendMessage(context.Background(), strings.Repeat("z", 7000), nil, "")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, []int{2}, res.Escalated)
	assert.True(t, res.Last.Accepted(), "page 3 was delivered")
	assert.Len(t, p.calls, 1+3+1)
	assert.Equal(t, []string{"2"}, fb.pagesSeen())
}

func TestEscalationInterleavesWithDispatch(t *testing.T) {
	var (
		mu    sync.Mutex
		trace []string
	)
	p := &fakePrimary{respond: func(_ string, text string) (kit.Outcome, error) {
		mu.Lock()
		trace = append(trace, "primary")
		mu.Unlock()
		return kit.Outcome{StatusCode: http.StatusBadGateway}, nil
	}}
	fb := &tracingFallback{trace: &trace, mu: &mu}
	s := newService(t, Config{MaxPageSize: 100, RetryLimit: 1, FallbackRetryLimit: 1},
		Deps{Primary: p, Escalator: NewEscalator(fb, nil, 0, logx.Nop(), nil)})

	res, err := s.SendMessage(context.Background(), strings.Repeat("y", 250), nil, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, res.Escalated)
	assert.Equal(t, []string{"primary", "fallback", "primary", "fallback", "primary", "fallback"}, trace)
}

type tracingFallback struct {
	mu    *sync.Mutex
	trace *[]string
}

func (f *tracingFallback) SendText(context.Context, int64, string) (int, error) {
	f.mu.Lock()
	*f.trace = append(*f.trace, "fallback")
	f.mu.Unlock()
	return http.StatusOK, nil
}

func TestMaxSizeTooLowDoesNoIO(t *testing.T) {
	p := okPrimary()
	s := newService(t, Config{MaxPageSize: 5}, Deps{Primary: p})

	_, err := s.SendAlert(context.Background(), "x", nil, "")
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, p.calls)
}

func TestResolutionFailureSurfaces(t *testing.T) {
	p := &fakePrimary{respond: func(string, string) (kit.Outcome, error) { return kit.Outcome{}, errNetwork }}
	e := NewEscalator(&fakeFallback{}, &fakeResolver{err: assert.AnError}, 0, logx.Nop(), nil)
	s := newService(t, Config{Receiver: kit.Receiver{Name: "Ops"}, RetryLimit: 1}, Deps{Primary: p, Escalator: e})

	_, err := s.SendMessage(context.Background(), "x", nil, "")
	require.ErrorIs(t, err, ErrResolution)
}

func TestSymbolicReceiverResolvedLazily(t *testing.T) {
	res := &fakeResolver{id: 5}
	e := NewEscalator(&fakeFallback{}, res, 0, logx.Nop(), nil)
	s := newService(t, Config{Receiver: kit.Receiver{Name: "Ops"}}, Deps{Primary: okPrimary(), Escalator: e})

	_, err := s.SendMessage(context.Background(), "x", nil, "")
	require.NoError(t, err)
	assert.Zero(t, res.calls, "primary accepts names directly")
}

func TestSymbolicReceiverResolvedOncePerSend(t *testing.T) {
	p := &fakePrimary{respond: func(string, string) (kit.Outcome, error) {
		return kit.Outcome{StatusCode: http.StatusBadGateway}, nil
	}}
	res := &fakeResolver{id: -9}
	fb := &fakeFallback{}
	e := NewEscalator(fb, res, 0, logx.Nop(), nil)
	s := newService(t, Config{Receiver: kit.Receiver{Name: "Ops"}, MaxPageSize: 100, RetryLimit: 1, FallbackRetryLimit: 1},
		Deps{Primary: p, Escalator: e})

	out, err := s.SendMessage(context.Background(), strings.Repeat("q", 250), nil, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out.Escalated)
	assert.Equal(t, 1, res.calls)
	require.Len(t, fb.sent, 3)
	for _, c := range fb.sent {
		assert.Equal(t, int64(-9), c.chatID)
	}

	_, err = s.SendMessage(context.Background(), "again", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.calls, "each send resolves afresh")
}

func TestSendThresholdQueuedIsInformational(t *testing.T) {
	no := false
	p := &fakePrimary{respond: func(string, string) (kit.Outcome, error) {
		return kit.Outcome{StatusCode: http.StatusOK, Queued: &no}, nil
	}}
	fb := &fakeFallback{}
	s := newService(t, Config{}, Deps{Primary: p, Escalator: NewEscalator(fb, nil, 0, logx.Nop(), nil)})

	res, err := s.SendThreshold(context.Background(), "t", nil, "")
	require.NoError(t, err)
	assert.True(t, res.Last.Accepted())
	require.NotNil(t, res.Last.Queued)
	assert.False(t, *res.Last.Queued)
	assert.Empty(t, fb.sent)
	assert.Equal(t, "/send_message_threshold", p.calls[0].endpoint)
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestSendAlertDedup(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := storage.NewMemory(clk.Now)
	p := okPrimary()
	s := newService(t, Config{}, Deps{Primary: p, Alerts: gate.NewAlertDedup(st, time.Minute, logx.Nop())})
	ctx := context.Background()

	res, err := s.SendAlert(ctx, "disk", nil, "")
	require.NoError(t, err)
	assert.False(t, res.Suppressed)

	res, err = s.SendAlert(ctx, "disk", nil, "")
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Len(t, p.calls, 1, "suppressed alert makes no channel call")

	clk.t = clk.t.Add(2 * time.Minute)
	_, err = s.SendAlert(ctx, "disk", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"disk\n count: 1\n#1\n", "disk\n count: 2\n#1\n"}, p.texts())
	assert.Equal(t, "/send_alert", p.calls[1].endpoint)
}

func TestSendGated(t *testing.T) {
	ctx := context.Background()
	p := okPrimary()
	th := gate.NewThreshold(storage.NewMemory(nil), logx.Nop())
	s := newService(t, Config{}, Deps{Primary: p, Threshold: th})

	require.NoError(t, s.ConfigureGate(ctx, kit.ThresholdSetting{Message: "cpu hot", Count: 3, Window: time.Minute}))

	var suppressed []bool
	for i := 0; i < 4; i++ {
		res, err := s.SendGated(ctx, "cpu hot", kit.Amendment{"n": i}, "")
		require.NoError(t, err)
		suppressed = append(suppressed, res.Suppressed)
	}
	assert.Equal(t, []bool{true, true, false, true}, suppressed)
	require.Len(t, p.calls, 1)
	assert.Equal(t, "cpu hot\n count: 3\n#1\n", p.calls[0].text)
	assert.Equal(t, kit.Amendment{"n": 2}, p.calls[0].amend)
}

func TestSendGatedWithoutThreshold(t *testing.T) {
	s := newService(t, Config{}, Deps{Primary: okPrimary()})
	_, err := s.SendGated(context.Background(), "x", nil, "")
	require.ErrorIs(t, err, ErrConfiguration)
	require.ErrorIs(t, s.ConfigureGate(context.Background(), kit.ThresholdSetting{Message: "x", Count: 1, Window: time.Second}), ErrConfiguration)
}

type failingStore struct{ storage.Store }

func (failingStore) Incr(context.Context, string) (int64, error) { return 0, errNetwork }

func TestStoreFailureSurfaces(t *testing.T) {
	p := okPrimary()
	s := newService(t, Config{}, Deps{Primary: p, Alerts: gate.NewAlertDedup(failingStore{storage.NewMemory(nil)}, time.Minute, logx.Nop())})
	_, err := s.SendAlert(context.Background(), "x", nil, "")
	require.ErrorIs(t, err, ErrStore)
	assert.Empty(t, p.calls)
}

func TestDryRunMakesNoCalls(t *testing.T) {
	p := okPrimary()
	fb := &fakeFallback{}
	s := newService(t, Config{DryRun: true, MaxPageSize: 100}, Deps{
		Primary:   p,
		Escalator: NewEscalator(fb, nil, 0, logx.Nop(), nil),
		Alerts:    gate.NewAlertDedup(failingStore{storage.NewMemory(nil)}, time.Minute, logx.Nop()),
	})

	res, err := s.SendAlert(context.Background(), strings.Repeat("a", 250), nil, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Empty(t, p.calls)
	assert.Empty(t, fb.sent)

	code, err := s.SetThreshold(context.Background(), kit.ThresholdSetting{Message: "m", Count: 1, Window: time.Second})
	require.NoError(t, err)
	assert.Zero(t, code)
}

func TestSetThreshold(t *testing.T) {
	p := okPrimary()
	s := newService(t, Config{}, Deps{Primary: p})

	code, err := s.SetThreshold(context.Background(), kit.ThresholdSetting{Message: "m", Count: 2, Window: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "/set_sending_threshold", p.calls[0].endpoint)

	_, err = s.SetThreshold(context.Background(), kit.ThresholdSetting{})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestNoFallbackConfigured(t *testing.T) {
	p := &fakePrimary{respond: func(string, string) (kit.Outcome, error) {
		return kit.Outcome{StatusCode: http.StatusServiceUnavailable}, nil
	}}
	s := newService(t, Config{RetryLimit: 2}, Deps{Primary: p})

	res, err := s.SendMessage(context.Background(), "x", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Escalated)
	assert.Equal(t, http.StatusServiceUnavailable, res.Last.StatusCode)
	assert.Len(t, p.calls, 2)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, 3000, c.MaxPageSize)
	assert.Equal(t, 5, c.RetryLimit)
	assert.Equal(t, 5, c.FallbackRetryLimit)
}
