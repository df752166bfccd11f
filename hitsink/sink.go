package hitsink

import (
	"context"
	"log/slog"
)

// Sink is the output interface. Implementations deliver hits to different
// backends (stdout, webhook, websocket stream, sqlite, in-process callback).
type Sink interface {
	Send(ctx context.Context, hit Hit) error
	Close() error
}

// Router fans out hits to all configured sinks. One sink error does not
// block the others — errors are logged and the first encountered is
// returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Send(ctx context.Context, hit Hit) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, hit); err != nil {
			r.logger.Warn("hitsink: send failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
