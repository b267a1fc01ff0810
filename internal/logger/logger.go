package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zapLogger *zap.Logger
var Log = zap.NewNop().Sugar()

// InitLogger builds the process logger: JSON lines on stderr, level from
// LOG_LEVEL. Later calls return the same logger.
func InitLogger() (*zap.SugaredLogger, error) {
	if zapLogger != nil {
		return Log, nil
	}
	zapLogger = New(os.Stderr, GetZapLevelFromEnv())
	Log = zapLogger.Sugar()
	return Log, nil
}

// New returns a JSON logger writing to w at the given level.
func New(w io.Writer, level zapcore.Level) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.LevelKey = "level"
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

func GetZapLevelFromEnv() zapcore.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// ParseLevel maps debug, info, warn and error to zap levels; anything else
// is warn so that CLI output stays quiet.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

// SyncLogger flushes buffered entries.
func SyncLogger() {
	if zapLogger != nil {
		_ = zapLogger.Sync()
	}
}
