package mysql

import "github.com/AdewaleAdeniji/mailqueue"

const defaultTable = "email_queue"

// Config defines MySQL store behavior.
type Config struct {
	Table     string
	Clock     mailqueue.Clock
	Generator mailqueue.IDGenerator
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Clock == nil {
		c.Clock = mailqueue.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = mailqueue.UUIDv7Generator{}
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the queue table name. Use schema.table for a non-default schema.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithClock sets the time source used for row timestamps.
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
