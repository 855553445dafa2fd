package store

import "log/slog"

const (
	defaultMaxBatchOps     = 100
	defaultMaxIncludeDepth = 8
)

// Config holds configuration for a DB.
type Config struct {
	// MaxBatchOps caps the operations staged into one atomic commit. The
	// effective ceiling is the lower of this and the backend's
	// kv.Limiter.MaxAtomicOps, when the backend has one.
	// Default: 100
	MaxBatchOps int

	// MaxIncludeDepth bounds how deep Query.Include may nest. Deeper
	// includes fail with ErrIncludeDepth.
	// Default: 8
	MaxIncludeDepth int

	// RollbackPartialBatches undoes the committed chunks of a multi-chunk
	// write when a later chunk fails. Every compensating write checks that
	// the key still carries the versionstamp this write gave it, so a record
	// changed by someone else in between is left alone.
	// Default: true (false in the zero Config)
	RollbackPartialBatches bool

	// Logger receives commit and rollback events.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchOps:            defaultMaxBatchOps,
		MaxIncludeDepth:        defaultMaxIncludeDepth,
		RollbackPartialBatches: true,
		Logger:                 slog.Default(),
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.MaxBatchOps < 1 {
		c.MaxBatchOps = defaultMaxBatchOps
	}
	if c.MaxIncludeDepth < 1 {
		c.MaxIncludeDepth = defaultMaxIncludeDepth
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
