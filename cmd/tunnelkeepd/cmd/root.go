// Package cmd implements the tunnelkeepd CLI commands. The VPN control
// frontend (connect/disconnect/status) is out of scope here (spec.md §1);
// this binary only starts the daemon process and manages its systemd
// service installation.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// Build info set from main.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersionInfo sets the version info from build-time ldflags.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("tunnelkeepd version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "tunnelkeepd",
	Short: "tunnelkeepd is a consumer VPN tunnel daemon",
	Long: "tunnelkeepd manages a single encrypted tunnel to a relay, enforcing a\n" +
		"kill-switch firewall policy and DNS configuration for as long as the\n" +
		"tunnel is meant to be up, reconnecting through relay rotation and\n" +
		"connectivity loss without ever leaking traffic outside the tunnel.",
	// No Run function — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "/etc/tunnelkeepd/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides config")

	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("tunnelkeepd version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
