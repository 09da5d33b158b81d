package tsm

import (
	"errors"
	"log/slog"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/connectivity"
	"github.com/tunnelkeep/tunnelkeepd/internal/dns"
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/relayselector"
	"github.com/tunnelkeep/tunnelkeepd/internal/route"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
)

// PingerFactory builds a connectivity.Pinger bound to the tunnel interface
// that just came up; called fresh on every Connected entry.
type PingerFactory func(iface string) (connectivity.Pinger, error)

// Config wires the Machine actor to the concrete E/C/D/F/B/I components it
// drives. Every field is required except the initial preference values.
type Config struct {
	Firewall firewall.Controller
	DNS      *dns.Monitor
	Routes   route.Controller
	Engine   tunnelengine.Engine

	// EngineConfig supplies the tunnel interface name entry actions need
	// to build firewall/DNS/connectivity state; ApplyDefaults has
	// already been called on it by the daemon's top-level config load.
	EngineConfig tunnelengine.Config

	RelaySelector relayselector.Selector
	NewPinger     PingerFactory

	Logger *slog.Logger

	// MailboxSize bounds the command and tunnel-event channels.
	MailboxSize int

	// DieTimeout bounds how long enterDisconnecting waits for the
	// engine's close signal before giving up, mirroring T_die.
	DieTimeout time.Duration

	// Initial preference values; later changed via SetAllowLan,
	// SetAllowedEndpoint, and SetBlockWhenDisconnected.
	AllowLAN              bool
	AllowedEndpoint       firewall.AllowedEndpoint
	BlockWhenDisconnected bool
	CustomDNSServers      []string
}

// DefaultMailboxSize is used when Config.MailboxSize is unset.
const DefaultMailboxSize = 32

// DefaultDieTimeout mirrors tunnelengine.DefaultDieTimeout.
const DefaultDieTimeout = 4 * time.Second

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.MailboxSize <= 0 {
		c.MailboxSize = DefaultMailboxSize
	}
	if c.DieTimeout <= 0 {
		c.DieTimeout = DefaultDieTimeout
	}
}

// Validate reports whether the config is usable as-is.
func (c *Config) Validate() error {
	if c.Firewall == nil {
		return errors.New("tsm: config: Firewall is required")
	}
	if c.DNS == nil {
		return errors.New("tsm: config: DNS is required")
	}
	if c.Routes == nil {
		return errors.New("tsm: config: Routes is required")
	}
	if c.Engine == nil {
		return errors.New("tsm: config: Engine is required")
	}
	if c.RelaySelector == nil {
		return errors.New("tsm: config: RelaySelector is required")
	}
	if c.NewPinger == nil {
		return errors.New("tsm: config: NewPinger is required")
	}
	return nil
}
