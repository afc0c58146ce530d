package engine

import (
	"runtime"

	"github.com/ceciliomichael/wah4pc-phcore/pkg/logger"
)

// Option configures the Engine.
type Option func(*Config)

// Config holds all engine configuration.
type Config struct {
	// Terminology enables checking coded values against the bindings
	// the profiles declare.
	Terminology bool

	// Workers is the worker count for batch validation.
	Workers int

	// Logger receives engine diagnostics.
	Logger *logger.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Terminology: true,
		Workers:     runtime.NumCPU(),
		Logger:      logger.Default(),
	}
}

// WithTerminology enables or disables terminology checking. Structural
// checks are unaffected.
func WithTerminology(enable bool) Option {
	return func(c *Config) {
		c.Terminology = enable
	}
}

// WithWorkers sets the number of workers for batch validation.
// Defaults to runtime.NumCPU().
func WithWorkers(count int) Option {
	return func(c *Config) {
		if count > 0 {
			c.Workers = count
		}
	}
}

// WithLogger sets the logger the engine writes to.
func WithLogger(l *logger.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}
