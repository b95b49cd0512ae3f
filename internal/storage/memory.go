package storage

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value string
	until time.Time // zero: no expiry
}

func (e memEntry) live(now time.Time) bool {
	return e.until.IsZero() || now.Before(e.until)
}

// Memory is an in-process Store. It is safe for concurrent use.
// State is lost when the process exits.
type Memory struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

// NewMemory returns an empty store. now may be nil (time.Now).
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{m: map[string]memEntry{}, now: now}
}

func (s *Memory) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(key)
}

func (s *Memory) incrLocked(key string) (int64, error) {
	e, ok := s.m[key]
	if !ok || !e.live(s.now()) {
		s.m[key] = memEntry{value: "1"}
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.m[key] = e
	return n, nil
}

func (s *Memory) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.m[key] = s.entryLocked(value, ttl)
	s.mu.Unlock()
	return nil
}

func (s *Memory) entryLocked(value string, ttl time.Duration) memEntry {
	e := memEntry{value: value}
	if ttl > 0 {
		e.until = s.now().Add(ttl)
	}
	return e
}

func (s *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok || !e.live(s.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Memory) CountPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.m {
		if strings.HasPrefix(k, prefix) && e.live(now) {
			n++
		}
	}
	return n, nil
}

func (s *Memory) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deletePrefixLocked(prefix)), nil
}

func (s *Memory) deletePrefixLocked(prefix string) []string {
	var removed []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			delete(s.m, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// PruneExpired drops expired entries.
func (s *Memory) PruneExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.m {
		if !e.live(now) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

func (s *Memory) Close() error { return nil }
