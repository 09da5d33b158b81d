package relayselector

import (
	"errors"
	"time"
)

// Config configures a DefaultSelector.
type Config struct {
	// TunnelMTU is applied to generated WireGuard tunnel configs.
	TunnelMTU int

	// TunnelIPv4 is the local tunnel address assigned to the interface.
	TunnelIPv4 string

	// ListenPort is the local WireGuard listen port; 0 lets the kernel pick.
	ListenPort int

	// RelayPort is the WireGuard port candidates are dialed on when the
	// relay entry does not specify one.
	RelayPort int

	// KeepaliveInterval sets the WireGuard persistent keepalive.
	KeepaliveInterval time.Duration
}

// DefaultTunnelMTU is used when Config.TunnelMTU is unset.
const DefaultTunnelMTU = 1380

// DefaultTunnelIPv4 is used when Config.TunnelIPv4 is unset. It matches
// tsm's default tunnel gateway (10.64.0.1): relays answer DNS and ICMP on
// .1, so the client takes the next address in that /24.
const DefaultTunnelIPv4 = "10.64.0.2/32"

// DefaultRelayPort is used when Config.RelayPort is unset.
const DefaultRelayPort = 51820

// DefaultKeepaliveInterval is used when Config.KeepaliveInterval is unset.
const DefaultKeepaliveInterval = 25 * time.Second

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.TunnelMTU == 0 {
		c.TunnelMTU = DefaultTunnelMTU
	}
	if c.RelayPort == 0 {
		c.RelayPort = DefaultRelayPort
	}
	if c.TunnelIPv4 == "" {
		c.TunnelIPv4 = DefaultTunnelIPv4
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
}

// Validate reports whether the config is usable as-is.
func (c *Config) Validate() error {
	if c.TunnelIPv4 == "" {
		return errors.New("relayselector: config: TunnelIPv4 is required")
	}
	return nil
}
