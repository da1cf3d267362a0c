package mongo

import "github.com/AdewaleAdeniji/mailqueue"

const defaultCollection = "emailQueue"

// Config defines MongoDB store behavior.
type Config struct {
	Collection string
	Clock      mailqueue.Clock
	Generator  mailqueue.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.Clock == nil {
		c.Clock = mailqueue.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = mailqueue.UUIDv7Generator{}
	}

	return c
}

// Option configures the MongoDB store.
type Option func(*Config)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(c *Config) {
		c.Collection = name
	}
}

// WithClock sets the time source used for document timestamps.
func WithClock(clock mailqueue.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithGenerator sets the UUID generator.
func WithGenerator(gen mailqueue.IDGenerator) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}
