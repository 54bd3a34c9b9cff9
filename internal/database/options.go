package database

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a repository
type Option func(*options)

type options struct {
	now          func() time.Time
	resetOnReAdd bool
	log          zerolog.Logger
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithResetOnReAdd makes a duplicate vocab add reset the scheduling state.
func WithResetOnReAdd(reset bool) Option {
	return func(o *options) { o.resetOnReAdd = reset }
}

// WithLogger sets the repository logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}
