package httpserver

import "log/slog"

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger. Nil keeps the discarding default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStopHook registers a callback that runs when shutdown begins, before
// in-flight requests are awaited. Use it to end long-lived streams.
func WithStopHook(h func()) Option {
	return func(s *Server) {
		if h != nil {
			s.stopHooks = append(s.stopHooks, h)
		}
	}
}
