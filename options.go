package rosweb

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultTfInterval      = 100 * time.Millisecond
	DefaultRequestTimeout  = 30 * time.Second
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultMaxRetryBackoff = 30 * time.Second
)

type Option func(*Options)

type Options struct {
	// RequestTimeout bounds a single attempt. Zero disables the timeout.
	// Against a long-polling bridge it must exceed the server's long-poll
	// timeout, or quiet topics surface as timeouts.
	RequestTimeout time.Duration
	// MaxAttempts is the number of attempts per request, including the first.
	MaxAttempts     int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	TfInterval      time.Duration

	Logger     *zap.Logger
	Clock      clock.Clock
	Registerer prometheus.Registerer
}

func defaultOptions() Options {
	return Options{
		RequestTimeout:  DefaultRequestTimeout,
		MaxAttempts:     1,
		RetryBackoff:    DefaultRetryBackoff,
		MaxRetryBackoff: DefaultMaxRetryBackoff,
		TfInterval:      DefaultTfInterval,
		Logger:          zap.NewNop(),
		Clock:           clock.New(),
	}
}

func buildOptions(opts []Option) Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.RequestTimeout = d
		}
	}
}

// WithRetry enables retrying failed requests up to attempts times in total,
// sleeping backoff before the first retry and doubling it afterwards.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *Options) {
		if attempts > 0 {
			o.MaxAttempts = attempts
		}
		if backoff > 0 {
			o.RetryBackoff = backoff
		}
	}
}

func WithMaxRetryBackoff(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.MaxRetryBackoff = d
		}
	}
}

// WithTfInterval sets the default poll interval of transform subscriptions.
func WithTfInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TfInterval = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithClock replaces the clock used for tf timers and retry backoff.
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		if c != nil {
			o.Clock = c
		}
	}
}

// WithRegisterer registers the bridge metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = r
	}
}
