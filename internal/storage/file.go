package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "notifyrelay/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu  sync.Mutex
	mem *Memory

	snapshotPath string
	journal      *os.File
	writes       int
}

const compactEvery = 1000

const (
	opSet    = "set"
	opDelete = "del"
)

type journalRecord struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	Until int64  `json:"until,omitempty"` // unix milli, 0: no expiry
}

type snapshotEntry struct {
	Value string `json:"value"`
	Until int64  `json:"until,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	return openFileAt(cfg.Path, log, nil)
}

func openFileAt(path string, log logx.Logger, now func() time.Time) (*fileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	mem := NewMemory(now)
	if err := loadSnapshot(snapPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("snapshot unreadable, starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay stopped early", logx.Err(err))
	}
	_, _ = mem.PruneExpired(context.Background())

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		mem:          mem,
		snapshotPath: snapPath,
		journal:      jf,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journal.Close()
	s.journal = nil
	if cerr != nil {
		return cerr
	}
	return err
}

func (s *fileStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, errors.New("journal closed")
	}
	s.mem.mu.Lock()
	n, err := s.mem.incrLocked(key)
	e := s.mem.m[key]
	s.mem.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return n, s.appendLocked(journalRecord{Op: opSet, Key: key, Value: e.value, Until: untilMilli(e.until)})
}

func (s *fileStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("journal closed")
	}
	s.mem.mu.Lock()
	e := s.mem.entryLocked(value, ttl)
	s.mem.m[key] = e
	s.mem.mu.Unlock()
	return s.appendLocked(journalRecord{Op: opSet, Key: key, Value: value, Until: untilMilli(e.until)})
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.mem.Get(ctx, key)
}

func (s *fileStore) CountPrefix(ctx context.Context, prefix string) (int, error) {
	return s.mem.CountPrefix(ctx, prefix)
}

func (s *fileStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, errors.New("journal closed")
	}
	s.mem.mu.Lock()
	removed := s.mem.deletePrefixLocked(prefix)
	s.mem.mu.Unlock()
	for _, k := range removed {
		if err := s.appendLocked(journalRecord{Op: opDelete, Key: k}); err != nil {
			return 0, err
		}
	}
	return len(removed), nil
}

// PruneExpired drops expired entries and rewrites the snapshot.
func (s *fileStore) PruneExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.mem.PruneExpired(ctx)
	if n == 0 || s.journal == nil {
		return n, nil
	}
	return n, s.compactLocked()
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	s.mem.mu.Lock()
	now := s.mem.now()
	snap := make(map[string]snapshotEntry, len(s.mem.m))
	for k, e := range s.mem.m {
		if e.live(now) {
			snap[k] = snapshotEntry{Value: e.value, Until: untilMilli(e.until)}
		}
	}
	s.mem.mu.Unlock()

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, mem *Memory) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]snapshotEntry
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, e := range m {
		mem.m[k] = memEntry{value: e.Value, until: fromMilli(e.Until)}
	}
	return nil
}

func replayJournal(path string, mem *Memory) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		switch r.Op {
		case opSet:
			mem.m[r.Key] = memEntry{value: r.Value, until: fromMilli(r.Until)}
		case opDelete:
			delete(mem.m, r.Key)
		}
	}
	return sc.Err()
}

func untilMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
