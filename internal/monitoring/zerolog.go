package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the configured log level.
const EnvLogLevel = "USBSNIFF_LOG_LEVEL"

// ParseLevel accepts zerolog level names plus "off".
func ParseLevel(raw string) (zerolog.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "":
		return zerolog.InfoLevel, nil
	case "off", "none":
		return zerolog.Disabled, nil
	default:
		lvl, err := zerolog.ParseLevel(s)
		if err != nil {
			return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
		return lvl, nil
	}
}

// NewZerologLoggers returns hooks writing structured records at debug, info
// and warn level. Records below level are discarded. With console set,
// output is human readable.
func NewZerologLoggers(w io.Writer, level zerolog.Level, console bool) Loggers {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Str("component", "usbsniff").Logger()
	at := func(lvl zerolog.Level) func(format string, v ...interface{}) {
		return func(format string, v ...interface{}) {
			logger.WithLevel(lvl).Msgf(format, v...)
		}
	}
	return Loggers{
		Debugf: at(zerolog.DebugLevel),
		Infof:  at(zerolog.InfoLevel),
		Warnf:  at(zerolog.WarnLevel),
	}
}

// NewZerologf returns the info-level hook of NewZerologLoggers.
func NewZerologf(w io.Writer, level zerolog.Level, console bool) func(format string, v ...interface{}) {
	return NewZerologLoggers(w, level, console).Infof
}

// Configure installs zerolog backed hooks. The level comes from EnvLogLevel
// when set, else from level.
func Configure(w io.Writer, level string, console bool) error {
	if env := os.Getenv(EnvLogLevel); env != "" {
		level = env
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetLoggers(NewZerologLoggers(w, lvl, console))
	return nil
}
