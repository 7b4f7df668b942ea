package logutil

import (
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StringToZapLogLevel translates log level string to log level.
func StringToZapLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	}
	return zapcore.InfoLevel
}

// InitLogger builds the process logger from cfg and installs it as the
// global pingcap/log logger.
func InitLogger(cfg *log.Config) error {
	lg, props, err := log.InitLogger(cfg, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return errors.Annotate(err, "initialize logger")
	}
	log.ReplaceGlobals(lg, props)
	log.SetLevel(StringToZapLogLevel(cfg.Level))
	return nil
}
