package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyrelay/internal/config"
	"notifyrelay/internal/storage"
)

func primaryServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func decode(t *testing.T, raw string) *config.Config {
	t.Helper()
	cfg, err := config.Decode("config.json", []byte(raw))
	require.NoError(t, err)
	return cfg
}

func TestNewSendsThroughPrimary(t *testing.T) {
	srv, hits := primaryServer(t, http.StatusOK)
	cfg := decode(t, fmt.Sprintf(`{
		"receiver": {"id": -100},
		"primary": {"url": %q},
		"store": {"driver": "memory"},
		"logging": {"level": "error"}
	}`, srv.URL))

	a, err := New(cfg, Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(context.Background())) }()
	require.NoError(t, a.Start())
	assert.Nil(t, a.Resolver())

	res, err := a.Service().SendMessage(context.Background(), "hello", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.True(t, res.Last.Accepted())
	assert.Equal(t, int32(1), hits.Load())
}

func TestDryRunOptionSkipsNetwork(t *testing.T) {
	srv, hits := primaryServer(t, http.StatusOK)
	cfg := decode(t, fmt.Sprintf(`{
		"receiver": {"name": "ops"},
		"primary": {"url": %q},
		"store": {"driver": "memory"},
		"logging": {"level": "error"}
	}`, srv.URL))

	a, err := New(cfg, Options{DryRun: true, LogLevel: "error"})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.True(t, a.Config().DryRun)
	assert.False(t, cfg.DryRun, "caller config must not be mutated")

	_, err = a.Service().SendAlert(context.Background(), "boom", nil, "")
	require.NoError(t, err)
	assert.Zero(t, hits.Load())
}

func TestSharedStoreForThresholds(t *testing.T) {
	srv, _ := primaryServer(t, http.StatusOK)
	cfg := decode(t, fmt.Sprintf(`{
		"receiver": {"id": 1},
		"primary": {"url": %q},
		"store": {"driver": "sqlite", "path": %q},
		"logging": {"level": "error"}
	}`, srv.URL, filepath.Join(t.TempDir(), "state.db")))

	a, err := New(cfg, Options{})
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.Same(t, a.store, a.thresholdStore)
}

func TestReloadSwapsService(t *testing.T) {
	srv, hits := primaryServer(t, http.StatusOK)
	raw := `{
		"receiver": {"id": 1},
		"primary": {"url": %q},
		"store": {"driver": "memory"},
		"logging": {"level": "error"},
		"dry_run": %t
	}`
	a, err := New(decode(t, fmt.Sprintf(raw, srv.URL, true)), Options{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	before := a.Service()
	_, err = a.Service().SendMessage(context.Background(), "x", nil, "")
	require.NoError(t, err)
	assert.Zero(t, hits.Load())

	require.NoError(t, a.Reload(decode(t, fmt.Sprintf(raw, srv.URL, false)), Options{}))
	assert.NotSame(t, before, a.Service())

	_, err = a.Service().SendMessage(context.Background(), "x", nil, "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := primaryServer(t, http.StatusOK)
	cfg := decode(t, fmt.Sprintf(`{
		"receiver": {"id": 1},
		"primary": {"url": %q},
		"store": {"driver": "file", "path": %q, "prune_schedule": "@every 1h"},
		"logging": {"level": "error"}
	}`, srv.URL, filepath.Join(t.TempDir(), "state")))

	a, err := New(cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, a.Start())
	require.Len(t, a.pruners, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestMapStoreConfig(t *testing.T) {
	got, err := mapStoreConfig("store", config.StoreConfig{Driver: " SQLite3 ", Path: "a.db", BusyTimeout: "2s"})
	require.NoError(t, err)
	assert.Equal(t, storage.Config{Driver: "sqlite", Path: "a.db", BusyTimeout: 2 * time.Second}, got)

	got, err = mapStoreConfig("store", config.StoreConfig{})
	require.NoError(t, err)
	assert.Equal(t, "memory", got.Driver)

	got, err = mapStoreConfig("store", config.StoreConfig{Driver: "redis", Addr: " 127.0.0.1:6379 ", DB: 2, KeyPrefix: "nr:"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", got.Addr)
	assert.Equal(t, 2, got.DB)

	_, err = mapStoreConfig("threshold_store", config.StoreConfig{Driver: "file"})
	require.ErrorContains(t, err, "threshold_store.path")

	_, err = mapStoreConfig("store", config.StoreConfig{Driver: "sqlite", Path: "a.db", BusyTimeout: "soon"})
	require.Error(t, err)

	_, err = mapStoreConfig("store", config.StoreConfig{Driver: "etcd"})
	require.Error(t, err)
}

func TestSameStore(t *testing.T) {
	assert.True(t, sameStore(storage.Config{Driver: "memory"}, storage.Config{Driver: "memory"}))
	assert.True(t, sameStore(storage.Config{Driver: "sqlite", Path: "a"}, storage.Config{Driver: "sqlite", Path: "a"}))
	assert.False(t, sameStore(storage.Config{Driver: "sqlite", Path: "a"}, storage.Config{Driver: "file", Path: "a"}))
	assert.False(t, sameStore(
		storage.Config{Driver: "redis", Addr: "x", DB: 0},
		storage.Config{Driver: "redis", Addr: "x", DB: 1},
	))
}

func TestMapLogConfig(t *testing.T) {
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(`{"logging":{"level":"warn","console":true,"telegram":{"enabled":true,"chat_id":-5,"rate_per_sec":3}}}`), &cfg))
	lc := mapLogConfig(&cfg)
	assert.Equal(t, "warn", lc.Level)
	assert.True(t, lc.Console)
	assert.Equal(t, int64(-5), lc.Telegram.ChatID)
	assert.Equal(t, 3, lc.Telegram.RatePerSec)
}
