package dat

import (
	"log/slog"
	"runtime"
)

// Option configures a Session.
type Option func(*config)

type config struct {
	logger      *slog.Logger
	concurrency int
}

func newConfig(opts []Option) config {
	cfg := config{
		logger:      slog.New(slog.DiscardHandler),
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger sets the logger for session events. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConcurrency bounds the workers used by ExtractAll and by table
// preparation. Values <= 0 keep the default of runtime.NumCPU().
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}
