package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Levels lists the accepted verbosity names, quietest first.
var Levels = []string{"error", "warn", "info", "debug", "trace"}

// New builds a console logger at the given verbosity. trace has no zap
// equivalent and logs at debug level. With no output paths the logger
// writes to stderr.
func New(verbosity string, outputPaths ...string) (*zap.Logger, error) {
	level, err := ParseLevel(verbosity)
	if err != nil {
		return nil, err
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.DisableStacktrace = level > zapcore.DebugLevel
	if len(outputPaths) > 0 {
		config.OutputPaths = outputPaths
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return config.Build()
}

// ParseLevel maps a verbosity name to a zap level.
func ParseLevel(verbosity string) (zapcore.Level, error) {
	switch verbosity {
	case "error":
		return zapcore.ErrorLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "debug", "trace":
		return zapcore.DebugLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown verbosity %q", verbosity)
}
