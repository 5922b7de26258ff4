package applog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	fileName    = "tabregel.log"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
	file   *os.File
)

// Init opens the log file for appending. Call once at startup.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Safe to skip; all log calls are no-ops if not initialized.
func Init(dir, level string) error {
	path := filepath.Join(dir, fileName)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "event"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), ParseLevel(level))

	mu.Lock()
	if file != nil {
		file.Close()
	}
	file = f
	logger = zap.New(core).Sugar()
	mu.Unlock()
	return nil
}

// Use routes log calls to an existing zap logger. Tests use it with
// zaptest/observer to assert on emitted events.
func Use(l *zap.Logger) {
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	logger.Sync()
	logger = zap.NewNop().Sugar()
	if file != nil {
		file.Close()
		file = nil
	}
}

// ParseLevel maps a config level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Info logs a structured event line.
//
//	applog.Info("bridge.connected", "remote", addr)
//	applog.Info("engine.done", "op", "group-by-rules", "moved", 12)
func Info(event string, kv ...any) {
	current().Infow(event, kv...)
}

// Debug logs a verbose event, dropped unless the level is debug.
func Debug(event string, kv ...any) {
	current().Debugw(event, kv...)
}

// Warn logs a recoverable problem, such as an invalid rule color.
func Warn(event string, kv ...any) {
	current().Warnw(event, kv...)
}

// Error logs an event with an error.
//
//	applog.Error("bridge.send", err, "action", "moveTab")
func Error(event string, err error, kv ...any) {
	current().Errorw(event, append([]any{zap.Error(err)}, kv...)...)
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
