// Package logging builds the process logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger at level. format "console" gives the human
// readable development encoder; anything else logs JSON to stderr.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfgZap zap.Config
	switch strings.ToLower(format) {
	case "console", "text":
		cfgZap = zap.NewDevelopmentConfig()
		cfgZap.Development = false
	default:
		cfgZap = zap.NewProductionConfig()
		cfgZap.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfgZap.Level.SetLevel(lvl)
	cfgZap.OutputPaths = []string{"stderr"}
	return cfgZap.Build()
}
