package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	scheduler "github.com/gocronforge/dbscheduler"
)

// zapLogger adapts a *zap.SugaredLogger to scheduler.Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

var _ scheduler.Logger = (*zapLogger)(nil)

// New builds a scheduler.Logger from cfg.
func New(cfg Config) (scheduler.Logger, error) {
	encoder := buildEncoder(cfg)

	writeSyncer, err := buildWriteSyncer(cfg)
	if err != nil {
		return nil, fmt.Errorf("build log write syncer: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, parseLevel(cfg.Level))
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{sugar: zl.Sugar()}, nil
}

func buildEncoder(cfg Config) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
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
	if cfg.Format == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func buildWriteSyncer(cfg Config) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "file":
		return buildFileWriteSyncer(cfg)
	default:
		return buildCustomFileWriteSyncer(cfg.Output)
	}
}

func buildFileWriteSyncer(cfg Config) (zapcore.WriteSyncer, error) {
	if cfg.File == nil {
		return nil, fmt.Errorf("file config required when output is \"file\"")
	}
	if err := os.MkdirAll(cfg.File.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logFile := filepath.Join(cfg.File.Dir, cfg.File.Filename+".log")

	if cfg.Rotate != nil && cfg.Rotate.Enabled {
		maxAgeDays := int(cfg.Rotate.MaxAge.Hours() / 24)
		lumber := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    cfg.Rotate.MaxSizeMB,
			MaxAge:     maxAgeDays,
			MaxBackups: cfg.Rotate.MaxBackups,
			Compress:   cfg.Rotate.Compress,
			LocalTime:  true,
		}
		return zapcore.AddSync(lumber), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

func buildCustomFileWriteSyncer(path string) (zapcore.WriteSyncer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(file), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debugw(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *zapLogger) Infow(msg string, keysAndValues ...any)  { l.sugar.Infow(msg, keysAndValues...) }
func (l *zapLogger) Warnw(msg string, keysAndValues ...any)  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *zapLogger) Errorw(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }
