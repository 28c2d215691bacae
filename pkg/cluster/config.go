package cluster

import "time"

// Config holds the per-node coordination settings.
type Config struct {
	NodeID int // Identifier of this node; also its priority (higher wins)

	MasterTimeout   time.Duration // Slave watchdog interval for probing the coordinator
	ElectionTimeout time.Duration // Interval between rival-discovery checks
	MergeTimeout    time.Duration // Wait for invitation replies, and the unit of merge back-off

	RPCTimeout time.Duration // Bound on every outbound peer call
	TimeUnit   time.Duration // Smallest timeout; also the unit of the start-up stagger
}

// DefaultConfig returns production timeouts.
func DefaultConfig() Config {
	return Config{
		MasterTimeout:   10 * time.Second,
		ElectionTimeout: 10 * time.Second,
		MergeTimeout:    10 * time.Second,
		RPCTimeout:      2 * time.Second,
		TimeUnit:        time.Second,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.NodeID < 0 {
		return ErrInvalidNodeID
	}
	return nil
}

// normalized replaces every timeout that is not positive with one TimeUnit.
func (c Config) normalized() Config {
	if c.TimeUnit <= 0 {
		c.TimeUnit = time.Second
	}
	for _, d := range []*time.Duration{&c.MasterTimeout, &c.ElectionTimeout, &c.MergeTimeout} {
		if *d <= 0 {
			*d = c.TimeUnit
		}
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = 2 * time.Second
	}
	return c
}
