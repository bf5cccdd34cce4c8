package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Options configures the process-wide logger.
type Options struct {
	Level  Level
	Format string // "console" (default) or "json"
	Writer io.Writer
}

var (
	mu         sync.RWMutex
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger = build(Options{Level: LevelInfo, Format: "console", Writer: os.Stderr})
	})
}

// Configure replaces the global logger. Safe to call more than once; the
// CLI calls it after the config file is loaded.
func Configure(opt Options) {
	initLogger()
	mu.Lock()
	logger = build(opt)
	mu.Unlock()
}

func build(opt Options) zerolog.Logger {
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if !strings.EqualFold(opt.Format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(toZerolog(opt.Level)).With().Timestamp().Logger()
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// ParseLevel maps a config string onto a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	emit(current().Debug(), msg, kv)
}

func Info(msg string, kv ...any) {
	emit(current().Info(), msg, kv)
}

func Warn(msg string, kv ...any) {
	emit(current().Warn(), msg, kv)
}

func Error(msg string, err error, kv ...any) {
	emit(current().Error().Err(err), msg, kv)
}

func current() *zerolog.Logger {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()
	return &l
}

func emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	ev.Fields(pairs(kv)).Msg(msg)
}

// pairs turns a key-value list into zerolog fields. Pairs with a non-string
// key are skipped, as is a trailing value without a key.
func pairs(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, key, kv[i+1])
	}
	return out
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
