package logger

import (
	"os"

	"github.com/go-notify/internal/config"
	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger: JSON to stdout, or to a rotated file when
// cfg.LogFile is set (optionally mirrored to stdout).
func New(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.LogLevel); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var ws zapcore.WriteSyncer
	if cfg.LogFile != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
		if cfg.LogStdout {
			ws = zapcore.NewMultiWriteSyncer(rotated, zapcore.AddSync(os.Stdout))
		} else {
			ws = rotated
		}
	} else {
		ws = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, level)
	return zap.New(core, zap.AddCaller()).With(zap.String("env", cfg.AppEnv))
}
