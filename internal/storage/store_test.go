package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "notifyrelay/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type backend struct {
	name string
	open func(t *testing.T) (Store, func(time.Duration))
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) (Store, func(time.Duration)) {
			clk := newFakeClock()
			return NewMemory(clk.Now), clk.Advance
		}},
		{name: "file", open: func(t *testing.T) (Store, func(time.Duration)) {
			clk := newFakeClock()
			st, err := openFileAt(filepath.Join(t.TempDir(), "state.db"), logx.Nop(), clk.Now)
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			return st, clk.Advance
		}},
		{name: "sqlite", open: func(t *testing.T) (Store, func(time.Duration)) {
			clk := newFakeClock()
			st, err := openSQLiteAt(":memory:", 0, logx.Nop(), clk.Now)
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			return st, clk.Advance
		}},
		{name: "redis", open: func(t *testing.T) (Store, func(time.Duration)) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			st := NewRedis(client, "nr:", logx.Nop())
			t.Cleanup(func() { _ = st.Close() })
			return st, mr.FastForward
		}},
	}
}

func TestStoreIncr(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st, _ := b.open(t)
			ctx := context.Background()

			for want := int64(1); want <= 3; want++ {
				n, err := st.Incr(ctx, "counter")
				require.NoError(t, err)
				assert.Equal(t, want, n)
			}

			require.NoError(t, st.SetEx(ctx, "counter", "0", 0))
			n, err := st.Incr(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			require.NoError(t, st.SetEx(ctx, "word", "abc", 0))
			_, err = st.Incr(ctx, "word")
			require.ErrorIs(t, err, ErrNotInteger)
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st, advance := b.open(t)
			ctx := context.Background()

			require.NoError(t, st.SetEx(ctx, "marker", "1", 10*time.Second))
			require.NoError(t, st.SetEx(ctx, "forever", "x", 0))

			v, ok, err := st.Get(ctx, "marker")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", v)

			advance(11 * time.Second)

			_, ok, err = st.Get(ctx, "marker")
			require.NoError(t, err)
			assert.False(t, ok)

			v, ok, err = st.Get(ctx, "forever")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "x", v)

			n, err := st.Incr(ctx, "marker")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "expired key restarts at 1")
		})
	}
}

func TestStorePrefix(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			st, advance := b.open(t)
			ctx := context.Background()

			require.NoError(t, st.SetEx(ctx, "abc-1", "0", time.Minute))
			require.NoError(t, st.SetEx(ctx, "abc-2", "0", time.Minute))
			require.NoError(t, st.SetEx(ctx, "abc-3", "0", 5*time.Second))
			require.NoError(t, st.SetEx(ctx, "abd-1", "0", time.Minute))

			n, err := st.CountPrefix(ctx, "abc-")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			advance(6 * time.Second)
			n, err = st.CountPrefix(ctx, "abc-")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, err = st.DeletePrefix(ctx, "abc-")
			require.NoError(t, err)

			n, err = st.CountPrefix(ctx, "abc-")
			require.NoError(t, err)
			assert.Zero(t, n)

			n, err = st.CountPrefix(ctx, "abd-")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	st, err := openFileAt(path, logx.Nop(), nil)
	require.NoError(t, err)
	_, err = st.Incr(ctx, "c")
	require.NoError(t, err)
	_, err = st.Incr(ctx, "c")
	require.NoError(t, err)
	require.NoError(t, st.SetEx(ctx, "gone-1", "x", 0))
	_, err = st.DeletePrefix(ctx, "gone-")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = openFileAt(path, logx.Nop(), nil)
	require.NoError(t, err)
	defer st.Close()

	v, ok, err := st.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok, err = st.Get(ctx, "gone-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepersPruneExpired(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()

	sq, err := openSQLiteAt(":memory:", 0, logx.Nop(), clk.Now)
	require.NoError(t, err)
	defer sq.Close()
	mem := NewMemory(clk.Now)

	for _, st := range []interface {
		Store
		Sweeper
	}{mem, sq} {
		require.NoError(t, st.SetEx(ctx, "a", "1", time.Second))
		require.NoError(t, st.SetEx(ctx, "b", "1", 0))
	}
	clk.Advance(2 * time.Second)

	for _, sw := range []Sweeper{mem, sq} {
		n, err := sw.PruneExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestOpen(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "etcd"}, logx.Nop())
	require.Error(t, err)

	mr := miniredis.RunT(t)
	st, err = Open(Config{Driver: "redis", Addr: mr.Addr()}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestNewPruner(t *testing.T) {
	mem := NewMemory(nil)

	p, err := NewPruner(mem, "", logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewPruner(mem, "not a schedule", logx.Nop())
	require.Error(t, err)

	p, err = NewPruner(mem, "@every 1h", logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, p.Start())
	p.RunOnce()
	p.Stop(context.Background())

	mr := miniredis.RunT(t)
	rs := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "", logx.Nop())
	p, err = NewPruner(rs, "@every 1h", logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, p, "redis expires natively")
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}
