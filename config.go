package bastion

import "time"

// Config tunes a System, built on the same functional-options shape used
// throughout this codebase for constructor configuration.
type Config struct {
	// NodeName is this process's name in the bastion:// path scheme.
	NodeName string
	// MaxRestarts and RestartWindow bound the root system loop's own
	// restart budget for top-level supervisors, identical in shape to a
	// Supervisor's own restart policy.
	MaxRestarts   int
	RestartWindow time.Duration
	// Executor backs every actor goroutine and blocking-pool call; nil
	// selects DefaultExecutor().
	Executor Executor
}

// DefaultConfig returns the configuration Init starts from before applying
// its options.
func DefaultConfig() Config {
	return Config{
		NodeName:      "node",
		MaxRestarts:   5,
		RestartWindow: time.Second,
		Executor:      nil,
	}
}

// Option mutates a Config, used by the façade's Init(opts...).
type Option func(*Config)

// WithNodeName sets the node name advertised in every local ActorPath.
func WithNodeName(name string) Option {
	return func(c *Config) { c.NodeName = name }
}

// WithRestartPolicy sets the root system loop's restart budget.
func WithRestartPolicy(maxRestarts int, within time.Duration) Option {
	return func(c *Config) { c.MaxRestarts = maxRestarts; c.RestartWindow = within }
}

// WithExecutor overrides the executor backing the whole runtime.
func WithExecutor(e Executor) Option {
	return func(c *Config) { c.Executor = e }
}

func (c Config) withDefaults() Config {
	if c.NodeName == "" {
		c.NodeName = "node"
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = 5
	}
	if c.RestartWindow <= 0 {
		c.RestartWindow = time.Second
	}
	if c.Executor == nil {
		c.Executor = DefaultExecutor()
	}
	return c
}
