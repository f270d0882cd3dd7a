// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/demoqa-e2e/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// globalLogger holds the process-wide logger once Initialize has run.
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const colorReset = "\x1b[0m"

// levelColors translates the color names accepted in configuration to ANSI codes.
var levelColors = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the global logger from configuration. The console core writes to
// consoleWriter; when LogFile is set a rotating JSON core is teed alongside it.
// Only the first call has any effect.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(newEncoder(cfg), consoleWriter, level)}
		if cfg.LogFile != "" {
			rotating := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(newEncoder(config.LoggerConfig{Format: "json"}), rotating, level))
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}

		logger := zap.New(zapcore.NewTee(cores...), opts...)
		if cfg.ServiceName != "" {
			logger = logger.Named(cfg.ServiceName)
		}
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger initializes the global logger writing to a locked stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the global logger so a test can initialize it again.
// Only tests should call this.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

// GetLogger returns the global logger, or a development logger if Initialize was never called.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// Component is shorthand for GetLogger().Named(name).
func Component(name string) *zap.Logger {
	return GetLogger().Named(name)
}

// Sync flushes buffered entries. Errors from syncing terminals are expected and ignored.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "sync /dev/stdout") ||
			strings.Contains(msg, "invalid argument") ||
			strings.Contains(msg, "inappropriate ioctl") ||
			strings.Contains(msg, "operation not supported") {
			return
		}
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// newEncoder returns a colorized single-line console encoder for Format "console"
// and a JSON encoder otherwise.
func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if cfg.Format == "console" {
		encCfg.EncodeLevel = colorLevelEncoder(cfg.Colors)
		encCfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(name + ".")
		}
		return zapcore.NewConsoleEncoder(encCfg)
	}

	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encCfg)
}

func colorLevelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	byLevel := map[zapcore.Level]string{
		zapcore.DebugLevel:  colors.Debug,
		zapcore.InfoLevel:   colors.Info,
		zapcore.WarnLevel:   colors.Warn,
		zapcore.ErrorLevel:  colors.Error,
		zapcore.DPanicLevel: colors.DPanic,
		zapcore.PanicLevel:  colors.Panic,
		zapcore.FatalLevel:  colors.Fatal,
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		label := strings.ToUpper(level.String())
		if code, ok := levelColors[byLevel[level]]; ok {
			enc.AppendString(code + label + colorReset)
			return
		}
		enc.AppendString(label)
	}
}
