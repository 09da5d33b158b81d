package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunnelkeep/tunnelkeepd/internal/packaging"
)

var purge bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove tunnelkeepd systemd service",
	RunE:  runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&purge, "purge", false, "also remove data and config directories")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)

	cfg := packaging.InstallConfig{}
	installer := packaging.NewInstaller(cfg, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)

	if err := installer.Uninstall(purge); err != nil {
		return fmt.Errorf("tunnelkeepd uninstall: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "tunnelkeepd uninstalled successfully")
	return nil
}
