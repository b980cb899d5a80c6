package dgsched

import "log/slog"

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeProvider replaces the standard time package.
// Nil providers are ignored.
func WithTimeProvider(p TimeProvider) Option {
	return func(s *Scheduler) {
		if p != nil {
			s.provider = p
		}
	}
}

// WithTimeOffset sets the initial time offset of the scheduler.
func WithTimeOffset(d Duration) Option {
	return func(s *Scheduler) { s.timeOffset = d }
}

// WithLogger sets the logger, slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithErrorHandler registers fn to be called by the worker
// for every failed dispatch. fn must not block
// and must not call Shutdown, use `go s.Shutdown()` instead.
func WithErrorHandler(fn func(*SendError)) Option {
	return func(s *Scheduler) { s.onError = fn }
}
