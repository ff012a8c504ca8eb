package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. format is "json" or "console"; debug
// lowers the level so that V(1) messages are emitted.
func New(debug bool, format string) (logr.Logger, func(), error) {
	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json", "":
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return logr.Discard(), func() {}, fmt.Errorf("unknown log format %q", format)
	}

	// logr V(n) maps to zap level -n
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-1))
	} else {
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("build zap logger: %w", err)
	}

	flush := func() { _ = zl.Sync() }
	return zapr.NewLogger(zl).WithName("cendari-auth"), flush, nil
}
