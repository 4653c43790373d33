package launcher

import (
	"fmt"
	"time"

	"github.com/evalphobia/logrus_sentry"
	log "github.com/sirupsen/logrus"
)

// verbosityToLevel maps the numeric verbosity onto a logrus level, clamping
// out of range values.
func verbosityToLevel(verbosity int) log.Level {
	switch {
	case verbosity < int(log.PanicLevel):
		return log.PanicLevel
	case verbosity > int(log.TraceLevel):
		return log.TraceLevel
	default:
		return log.Level(verbosity)
	}
}

// setupLogging configures the package level logger. When a Sentry DSN is
// given, errors and worse are reported to it as well.
func setupLogging(cfg LoggingConfig) error {
	log.SetLevel(verbosityToLevel(cfg.Verbosity))

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
			ForceColors:   cfg.Color,
		})
	}

	if cfg.SentryDSN == "" {
		return nil
	}
	hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []log.Level{
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
	})
	if err != nil {
		return fmt.Errorf("sentry hook: %w", err)
	}
	hook.Timeout = 5 * time.Second
	hook.StacktraceConfiguration.Enable = true
	log.AddHook(hook)
	return nil
}
