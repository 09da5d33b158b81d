// Package dns enforces the desired resolver list on every active network
// service and resists the OS overwriting it, per the kill-switch design.
package dns

import "time"

// DefaultBurstDelay is the leading debounce delay applied to a change-storm
// before re-applying the desired configuration.
const DefaultBurstDelay = 500 * time.Millisecond

// DefaultMaxDelay is the hard ceiling on debouncing before a re-apply is
// forced even if changes are still arriving.
const DefaultMaxDelay = 5 * time.Second

// Config holds the configuration for the DNS monitor.
type Config struct {
	// BurstDelay is the leading debounce delay. Default: 500ms.
	BurstDelay time.Duration
	// MaxDelay is the hard ceiling on debounce coalescing. Default: 5s.
	MaxDelay time.Duration
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.BurstDelay == 0 {
		c.BurstDelay = DefaultBurstDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
}
