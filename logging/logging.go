/*
logging.go - Structured logger construction

PURPOSE:
  Builds the process-wide *zap.Logger from the [log] section of the
  configuration file. Every component receives the logger by constructor
  injection; tests pass zap.NewNop().

FORMATS:
  json:     Structured output for log pipelines (default)
  console:  Human-readable output for local development

SEE ALSO:
  - config/config.go: LogConfig
  - cmd/server/main.go: Startup order
*/
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/loss-engine/config"
)

// ParseLevel converts a configured level name. Unknown values fall back to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
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

// New builds a logger writing to stdout at the configured level and format.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	console := strings.EqualFold(cfg.Format, "console")

	encCfg := zap.NewProductionEncoderConfig()
	encoding := "json"
	if console {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
		Development:      console,
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	log, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return log, nil
}
