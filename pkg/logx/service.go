package logx

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

// FileConfig controls the JSON file sink. Rotation is size based.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// TelegramConfig mirrors records at or above MinLevel into a chat.
type TelegramConfig struct {
	Enabled    bool
	ChatID     int64
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./notifyrelay.log"

// Service owns the log sinks. Apply swaps them at runtime; Loggers derived
// from the Service pick up the change on their next record.
type Service struct {
	stderr io.Writer
	root   atomic.Pointer[zerolog.Logger]

	mu     sync.Mutex
	file   *lumberjack.Logger
	mirror *mirror // nil without a sender
}

// New applies cfg and returns the Service with its root Logger. sender may be
// nil, which disables the Telegram mirror regardless of cfg.
func New(cfg Config, sender TextSender) (*Service, Logger) {
	s := &Service{stderr: os.Stderr}
	if sender != nil {
		s.mirror = newMirror(sender)
	}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// MirrorDropped reports Telegram mirror records dropped because the queue was full.
func (s *Service) MirrorDropped() int64 {
	if s.mirror == nil {
		return 0
	}
	return s.mirror.dropped.Load()
}

// Apply rebuilds the sinks from cfg. Safe to call concurrently with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(s.stderr))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		s.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		writers = append(writers, zerolog.SyncWriter(s.file))
	}
	if s.mirror != nil {
		s.mirror.apply(cfg.Telegram)
		if cfg.Telegram.Enabled {
			writers = append(writers, s.mirror)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(s.stderr))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close drains the Telegram mirror (bounded by ctx) and closes the file sink.
func (s *Service) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.mirror != nil {
		s.mirror.stop(ctx)
	}
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}
