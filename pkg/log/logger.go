package log

import (
	"io"
	"strings"

	pkgerrors "github.com/YuminosukeSato/forestkit/pkg/errors"
)

// SetupLogger installs a zerolog provider writing to w as the process-wide
// provider and routes library warnings through it.
func SetupLogger(w io.Writer, loglevel string) error {
	level, err := ToLogLevel(loglevel)
	if err != nil {
		return err
	}
	provider := NewZerologProviderWithWriter(w, level)
	SetProvider(provider)

	warnLogger := provider.GetLoggerWithName("warnings")
	pkgerrors.SetZerologWarnFunc(func(warning error) {
		warnLogger.Warn(warning.Error(), ErrorTypeKey, warningType(warning))
	})
	return nil
}

// ToLogLevel parses a level name ("debug", "info", "warn", "error").
func ToLogLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, pkgerrors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}

func warningType(w error) string {
	var metricWarn *pkgerrors.UndefinedMetricWarning
	if pkgerrors.As(w, &metricWarn) {
		return "UndefinedMetricWarning"
	}
	return "Warning"
}
