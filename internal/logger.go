package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"storefront/config"
	"storefront/entity"
	"storefront/services"
)

// Logger is a category logger. Messages at info level and above are also
// written to the database when one is set.
type Logger struct {
	category string
	debug    bool
	database services.Database
	zap      *zap.Logger
}

func NewLogger(category string, debug bool, database services.Database) *Logger {
	return &Logger{
		category: category,
		debug:    debug,
		database: database,
		zap:      zap.L().Named(category),
	}
}

// InitLogging builds the process-wide zap logger used by every category logger
// created afterwards. The returned function flushes buffered entries.
func InitLogging(conf config.LogConfig) (func() error, error) {
	level, err := zapcore.ParseLevel(conf.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "category",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if colorsEnabled(conf) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	switch conf.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format: %s", conf.Format)
	}

	writer, err := logWriter(conf)
	if err != nil {
		return nil, err
	}

	logger := zap.New(zapcore.NewCore(encoder, writer, level), zap.AddCaller(), zap.AddCallerSkip(1))
	zap.ReplaceGlobals(logger)
	return logger.Sync, nil
}

func logWriter(conf config.LogConfig) (zapcore.WriteSyncer, error) {
	switch conf.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "file":
		if conf.FilePath == "" {
			return nil, fmt.Errorf("log file path is required when output is 'file'")
		}
		if err := os.MkdirAll(filepath.Dir(conf.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.FilePath,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
			Compress:   conf.Compress,
			LocalTime:  true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown log output: %s", conf.Output)
	}
}

func colorsEnabled(conf config.LogConfig) bool {
	if !conf.Colors || conf.Output == "file" || conf.Format == "json" {
		return false
	}
	fd := os.Stdout.Fd()
	if conf.Output == "stderr" {
		fd = os.Stderr.Fd()
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (l *Logger) Debug(text string) {
	if !l.debug {
		return
	}
	l.zap.Debug(text)
}

func (l *Logger) Info(text string) {
	l.zap.Info(text)
	l.store("info", text)
}

func (l *Logger) Warn(text string) {
	l.zap.Warn(text)
	l.store("warn", text)
}

func (l *Logger) Error(text string, err error) {
	l.zap.Error(text, zap.Error(err))
	if err != nil {
		text = fmt.Sprintf("%s: %v", text, err)
	}
	l.store("error", text)
}

func (l *Logger) store(level, text string) {
	if l.database == nil {
		return
	}
	message := &entity.LogMessage{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Text:     text,
	}
	if err := l.database.WriteLogMessage(message); err != nil {
		l.zap.Warn("write log message", zap.Error(err))
	}
}

// secret masks identifiers and keys in log output
func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
