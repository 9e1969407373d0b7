package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 是全局日志对象，Init 之前为 no-op，测试中无需初始化
var Log = zap.NewNop().Sugar()

// Init builds the process logger. level is one of debug/info/warn/error.
func Init(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = l.Sugar()
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}
