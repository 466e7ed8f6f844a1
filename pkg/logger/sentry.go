package logger

import (
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry initializes the global Sentry client for panic/error
// reporting. Call once at startup with a configured DSN; an empty DSN
// is a no-op so the broker runs unchanged when Sentry isn't configured.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

// WithSentry arms l to forward every Error() call to Sentry in addition
// to the usual slog line, for components (brokerd's top-level error
// paths, connection teardown on abrupt disconnect) where an operator
// wants alerting without grepping logs.
func (l *SlogLogger) WithSentry() *SlogLogger {
	l.reportErrors = true
	return l
}

func (l *SlogLogger) reportToSentry(msg string, args ...interface{}) {
	if !l.reportErrors {
		return
	}
	event := msg
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			event += fmt.Sprintf(" %s=%v", key, args[i+1])
		}
	}
	sentry.CaptureException(errors.New(event))
}

// FlushSentry blocks until buffered Sentry events are sent or the
// timeout elapses; call during shutdown so a final reported error
// isn't dropped when the process exits.
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}
