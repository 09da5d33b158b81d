// Package daemon aggregates every subsystem of tunnelkeepd into a single
// process: it owns the Tunnel State Machine, the relay list cache, the
// access-method rotation actor, and the version-check actor, and exposes
// the operations a management RPC surface would bind to (spec.md §1 scopes
// that surface itself out; this package is its consumed interface).
package daemon

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tunnelkeep/tunnelkeepd/internal/accessmethod"
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/relayselector"
	"github.com/tunnelkeep/tunnelkeepd/internal/restclient"
	"github.com/tunnelkeep/tunnelkeepd/internal/route"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
	"github.com/tunnelkeep/tunnelkeepd/internal/versioncheck"
)

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory, matching
// packaging.DefaultDataDir.
const DefaultDataDir = "/var/lib/tunnelkeepd"

// DefaultRelayListRefresh is how often the background loop re-fetches the
// relay list once the cache is populated.
const DefaultRelayListRefresh = 1 * time.Hour

// defaultTunnelGateway matches tsm's defaultTunnelDNSServer: the in-tunnel
// address every WireGuard relay answers DNS and ICMP on.
const defaultTunnelGateway = "10.64.0.1"

// Config is the top-level configuration for the tunnelkeepd daemon. It
// aggregates every subsystem's configuration and is populated from a YAML
// file via ParseConfig. Field names mirror packaging.GenerateDefaultConfig's
// output so a freshly installed config.yaml parses here unchanged.
type Config struct {
	// LogLevel is the log level: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// DataDir is the directory for persistent daemon data (relay list
	// cache, version-check cache).
	DataDir string `yaml:"data_dir"`
	// APIBaseURL is the control plane base URL used to fetch the relay
	// list and version information.
	APIBaseURL string `yaml:"api_url"`

	AllowLAN              bool     `yaml:"allow_lan"`
	BlockWhenDisconnected bool     `yaml:"block_when_disconnected"`
	CustomDNSServers      []string `yaml:"custom_dns_servers"`

	AllowedEndpointAddress  string `yaml:"allowed_endpoint_address"`
	AllowedEndpointPort     int    `yaml:"allowed_endpoint_port"`
	AllowedEndpointProtocol string `yaml:"allowed_endpoint_protocol"`

	// RelayListPublicKey is the base64-encoded NaCl public key used to
	// verify the relay list's signed timestamp (spec.md §6). Empty
	// disables verification.
	RelayListPublicKey string `yaml:"relay_list_public_key"`

	// TunnelGateway is the address pinged to detect a stalled or dead
	// tunnel once Connected (spec.md §4.H).
	TunnelGateway string `yaml:"tunnel_gateway"`

	API           restclient.Config    `yaml:"api"`
	Firewall      firewall.Config      `yaml:"firewall"`
	Route         route.Config         `yaml:"route"`
	Engine        tunnelengine.Config  `yaml:"tunnel_engine"`
	RelaySelector relayselector.Config `yaml:"relay_selector"`
	AccessMethod  accessmethod.Config  `yaml:"access_method"`
	VersionCheck  versioncheck.Config  `yaml:"version_check"`

	Platform        string `yaml:"-"`
	PlatformVersion string `yaml:"-"`
	CurrentVersion  string `yaml:"-"`
}

// ApplyDefaults sets default values for zero-valued fields across every
// aggregated subsystem config.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.AllowedEndpointProtocol == "" {
		c.AllowedEndpointProtocol = "tcp"
	}
	if c.TunnelGateway == "" {
		c.TunnelGateway = defaultTunnelGateway
	}
	c.API.BaseURL = c.APIBaseURL
	c.API.ApplyDefaults()
	c.Firewall.ApplyDefaults()
	c.Route.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.RelaySelector.ApplyDefaults()
	c.AccessMethod.ApplyDefaults()
	c.VersionCheck.ApplyDefaults()
	c.VersionCheck.CacheDir = c.DataDir
	c.VersionCheck.Platform = c.Platform
	c.VersionCheck.PlatformVersion = c.PlatformVersion
	c.VersionCheck.CurrentVersion = c.CurrentVersion
}

// Validate checks that required fields are set and values are acceptable.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("daemon: config: invalid log_level %q", c.LogLevel)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("daemon: config: api_url is required")
	}
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.Firewall.Validate(); err != nil {
		return err
	}
	if err := c.Route.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.RelaySelector.Validate(); err != nil {
		return err
	}
	if err := c.AccessMethod.Validate(); err != nil {
		return err
	}
	if err := c.VersionCheck.Validate(); err != nil {
		return err
	}
	return nil
}

// AllowedEndpoint builds the firewall exception for the control-plane API
// from the configured address fields, defaulting the protocol to tcp.
func (c *Config) AllowedEndpoint() firewall.AllowedEndpoint {
	return firewall.AllowedEndpoint{
		Endpoint: tunnelparams.Endpoint{
			Address:  c.AllowedEndpointAddress,
			Port:     c.AllowedEndpointPort,
			Protocol: c.AllowedEndpointProtocol,
		},
		Clients: firewall.ClientsRoot,
	}
}

// ParseConfig reads a YAML configuration file and returns a Config. It
// applies defaults and validates the configuration.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("daemon: config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("daemon: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
