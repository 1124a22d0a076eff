package murr

import (
	"time"

	"golang.org/x/time/rate"
)

type options struct {
	logger        *Logger
	retryLimiter  *rate.Limiter
	retryAttempts int
}

// Option configures service construction.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:        NoopLogger(),
		retryLimiter:  rate.NewLimiter(rate.Every(5*time.Second), 1),
		retryAttempts: 5,
	}
}

// WithLogger sets the service logger. Nil restores the noop logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithRebuildRetry configures the background retry that runs when a write
// commits its segment but the follow-up snapshot rebuild fails. Retries
// are paced by interval, up to attempts tries.
func WithRebuildRetry(interval time.Duration, attempts int) Option {
	return func(o *options) {
		o.retryLimiter = rate.NewLimiter(rate.Every(interval), 1)
		o.retryAttempts = attempts
	}
}

// WithoutRebuildRetry disables the background rebuild retry; an orphaned
// segment is then picked up by the rebuild after the next write.
func WithoutRebuildRetry() Option {
	return func(o *options) {
		o.retryLimiter = nil
		o.retryAttempts = 0
	}
}
