// Package log provides structured logging for orpheus using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with this repo's domain-specific helpers.
type Logger struct {
	*zap.Logger
	onEvent func(pc uint64, category, name, detail string)
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// SetOnEvent sets the trace.Event callback invoked alongside every Event
// log call, so the emulator's trace collector can observe the same
// occurrences a human reads in the log.
func (l *Logger) SetOnEvent(fn func(pc uint64, category, name, detail string)) {
	l.onEvent = fn
}

// Event logs one analysis occurrence (a pattern hit, a watch change, a
// fault) and forwards it to the trace callback if set.
func (l *Logger) Event(pc uint64, category, name, detail string) {
	if l.onEvent != nil {
		l.onEvent(pc, category, name, detail)
	}
	l.Debug("event",
		zap.String("cat", category),
		zap.String("name", name),
		zap.String("detail", detail),
		zap.Uint64("pc", pc),
	)
}

// Fault logs a page fault serviced by the emulator's DMA-backed paging.
func (l *Logger) Fault(addr uint64, size int, ok bool) {
	l.Debug("fault",
		Addr(addr),
		zap.Int("size", size),
		zap.Bool("resolved", ok),
	)
}

// ScanStart logs the beginning of a pattern/string/RTTI range scan.
func (l *Logger) ScanStart(kind string, base uint64, size uint64) {
	l.Info("scan start",
		zap.String("kind", kind),
		Addr(base),
		Size(size),
	)
}

// ScanDone logs a range scan's outcome.
func (l *Logger) ScanDone(kind string, results int, cancelled bool) {
	l.Info("scan done",
		zap.String("kind", kind),
		zap.Int("results", results),
		zap.Bool("cancelled", cancelled),
	)
}

// WatchChange logs a detected memory change.
func (l *Logger) WatchChange(addr uint64, count uint32) {
	l.Debug("watch change",
		Addr(addr),
		zap.Uint32("count", count),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(zap.String("cat", category)),
		onEvent: l.onEvent,
	}
}

// Hex formats a uint64 as a hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Ptr creates a pointer field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}

// Pid creates a process ID field.
func Pid(pid uint32) zap.Field {
	return zap.Uint32("pid", pid)
}
