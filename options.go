package segmap

import (
	"hash/maphash"
	"log/slog"
)

const (
	DefaultCapacity         = 64
	DefaultConcurrencyLevel = 16
)

type config[K comparable] struct {
	capacity         int
	concurrencyLevel int
	hashFunc         HashFunc[K]
	logger           *slog.Logger
}

func defaultConfig[K comparable]() config[K] {
	return config[K]{
		capacity:         DefaultCapacity,
		concurrencyLevel: DefaultConcurrencyLevel,
	}
}

func (c *config[K]) apply(opts ...Option[K]) {
	for _, opt := range opts {
		opt(c)
	}

	if c.hashFunc == nil {
		c.hashFunc = MakeDefaultHashFunc[K](maphash.MakeSeed())
	}

	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
}

type Option[K comparable] func(c *config[K])

// Initial number of entries to pre-size for, spread evenly over segments.
func WithCapacity[K comparable](capacity int) Option[K] {
	return func(c *config[K]) {
		c.capacity = capacity
	}
}

// Requested number of segments, rounded up to the next power of two.
func WithConcurrencyLevel[K comparable](level int) Option[K] {
	return func(c *config[K]) {
		c.concurrencyLevel = level
	}
}

// Override default hash function.
func WithHashFunc[K comparable](f HashFunc[K]) Option[K] {
	return func(c *config[K]) {
		c.hashFunc = f
	}
}

// WithLogger sets the logger used for segment growth and compaction events.
// Records are emitted at debug level.
func WithLogger[K comparable](l *slog.Logger) Option[K] {
	return func(c *config[K]) {
		c.logger = l
	}
}
