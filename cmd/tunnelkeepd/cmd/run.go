package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/tunnelkeep/tunnelkeepd/internal/daemon"
	"github.com/tunnelkeep/tunnelkeepd/internal/dns"
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/route"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tunnelkeepd daemon in the foreground",
	Long:  "Load configuration, wire every subsystem together, and run until a signal arrives.",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	// 1. Parse config.
	cfg, err := daemon.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("tunnelkeepd run: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	cfg.Platform = "linux"
	cfg.PlatformVersion = kernelVersion()
	cfg.CurrentVersion = buildVersion

	// 2. Set up structured logger.
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting tunnelkeepd", "version", buildVersion)

	// 3. Construct platform components.
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("tunnelkeepd run: create data dir: %w", err)
	}
	dnsStore, err := dns.NewFileStore(filepath.Join(cfg.DataDir, "dns-backup"))
	if err != nil {
		return fmt.Errorf("tunnelkeepd run: dns store: %w", err)
	}
	firewallCtl := firewall.NewNftablesController(cfg.Firewall.TableName, logger)
	routeCtl := route.NewNetlinkController(cfg.Route, logger)
	engine := tunnelengine.NewWireGuardEngine(cfg.Engine, logger)
	gatewayIP := net.ParseIP(cfg.TunnelGateway)
	newPinger := daemon.NewPingerFactory(gatewayIP)
	trustedKey := daemon.TrustedRelayListKey(logger, cfg.RelayListPublicKey)

	// 4. Wire the daemon.
	d, err := daemon.New(*cfg, firewallCtl, routeCtl, dnsStore, engine, newPinger, trustedKey, logger)
	if err != nil {
		return fmt.Errorf("tunnelkeepd run: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 5. Run until signalled.
	d.Run(ctx)

	logger.Info("tunnelkeepd stopped")
	return nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// kernelVersion reports the running kernel release, sent to the control
// plane's version-check endpoint so it can tailor its response.
func kernelVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(uts.Release[:])
}
