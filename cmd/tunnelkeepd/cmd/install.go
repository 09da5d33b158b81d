package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunnelkeep/tunnelkeepd/internal/packaging"
)

var (
	installAPIURL    string
	installToken     string
	installTokenFile string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install tunnelkeepd as a systemd service",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installAPIURL, "api-url", "", "control plane API URL")
	installCmd.Flags().StringVar(&installToken, "token", "", "account token to provision, written to the data directory")
	installCmd.Flags().StringVar(&installTokenFile, "token-file", "", "path to a file containing the account token to copy in")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(logLevel)

	cfg := packaging.InstallConfig{
		APIBaseURL: installAPIURL,
		TokenValue: installToken,
		TokenFile:  installTokenFile,
	}

	installer := packaging.NewInstaller(cfg, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)

	if err := installer.Install(); err != nil {
		return fmt.Errorf("tunnelkeepd install: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "tunnelkeepd installed successfully")
	return nil
}
