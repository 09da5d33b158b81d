// Package packaging implements systemd service packaging for bare-metal Linux servers.
package packaging

import (
	"errors"
)

// InstallConfig holds the configuration for packaging and installing tunnelkeepd as a systemd service.
// InstallConfig is passed to NewInstaller as a constructor argument; it is not read from a file.
type InstallConfig struct {
	// BinaryPath is the path to install the tunnelkeepd binary.
	// Default: /usr/local/bin/tunnelkeepd
	BinaryPath string

	// ConfigDir is the configuration directory.
	// Default: /etc/tunnelkeepd
	ConfigDir string

	// DataDir is the data directory.
	// Default: /var/lib/tunnelkeepd
	DataDir string

	// RunDir is the runtime directory.
	// Default: /var/run/tunnelkeepd
	RunDir string

	// UnitFilePath is the path for the systemd unit file.
	// Default: /etc/systemd/system/tunnelkeepd.service
	UnitFilePath string

	// ServiceName is the systemd service name.
	// Default: tunnelkeepd
	ServiceName string

	// APIBaseURL is the control plane API URL (optional).
	APIBaseURL string

	// TokenValue is the account token value (optional).
	TokenValue string

	// TokenFile is the path to the token file to copy from (optional).
	TokenFile string
}

// DefaultBinaryPath is the default path to install the tunnelkeepd binary.
const DefaultBinaryPath = "/usr/local/bin/tunnelkeepd"

// DefaultConfigDir is the default configuration directory.
const DefaultConfigDir = "/etc/tunnelkeepd"

// DefaultDataDir is the default data directory.
const DefaultDataDir = "/var/lib/tunnelkeepd"

// DefaultRunDir is the default runtime directory.
const DefaultRunDir = "/var/run/tunnelkeepd"

// DefaultServiceName is the default systemd service name.
const DefaultServiceName = "tunnelkeepd"

// DefaultUnitFilePath is the default path for the systemd unit file.
const DefaultUnitFilePath = "/etc/systemd/system/tunnelkeepd.service"

// ApplyDefaults sets default values for zero-valued fields.
func (c *InstallConfig) ApplyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.RunDir == "" {
		c.RunDir = DefaultRunDir
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.UnitFilePath == "" {
		c.UnitFilePath = DefaultUnitFilePath
	}
}

// Validate checks that required fields are set.
func (c *InstallConfig) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("packaging: config: BinaryPath is required")
	}
	if c.ConfigDir == "" {
		return errors.New("packaging: config: ConfigDir is required")
	}
	if c.DataDir == "" {
		return errors.New("packaging: config: DataDir is required")
	}
	if c.RunDir == "" {
		return errors.New("packaging: config: RunDir is required")
	}
	if c.ServiceName == "" {
		return errors.New("packaging: config: ServiceName is required")
	}
	if c.UnitFilePath == "" {
		return errors.New("packaging: config: UnitFilePath is required")
	}
	return nil
}
