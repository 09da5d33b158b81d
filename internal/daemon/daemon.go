package daemon

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/accessmethod"
	"github.com/tunnelkeep/tunnelkeepd/internal/connectivity"
	"github.com/tunnelkeep/tunnelkeepd/internal/dns"
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/relaylist"
	"github.com/tunnelkeep/tunnelkeepd/internal/relayselector"
	"github.com/tunnelkeep/tunnelkeepd/internal/restclient"
	"github.com/tunnelkeep/tunnelkeepd/internal/route"
	"github.com/tunnelkeep/tunnelkeepd/internal/settingspatch"
	"github.com/tunnelkeep/tunnelkeepd/internal/tsm"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
	"github.com/tunnelkeep/tunnelkeepd/internal/versioncheck"
)

// Daemon owns every long-lived subsystem of tunnelkeepd and exposes the
// operations spec.md §6's control plane lists (ConnectTunnel,
// DisconnectTunnel, ReconnectTunnel, GetTunnelState, SetRelaySettings,
// SetAllowLan, SetBlockWhenDisconnected, SetDnsOptions, GetVersionInfo,
// access-method rotation) as plain Go methods. The RPC surface a frontend
// would call through is out of scope (spec.md §1); this is its consumed
// interface.
type Daemon struct {
	cfg    Config
	logger *slog.Logger

	Machine      *tsm.Machine
	AccessMethod *accessmethod.Selector
	VersionCheck *versioncheck.Checker

	relayCache    *relaylist.Cache
	relayFetcher  *relaylist.Fetcher
	relaySelector *relayselector.DefaultSelector

	mu          sync.Mutex
	constraints relayselector.RelayConstraints
	settingsRaw []byte
}

// TrustedRelayListKey decodes a base64-encoded NaCl public key used to
// verify the relay list's signed timestamp. A decode failure disables
// verification rather than refusing to start, matching the teacher's
// preference for degraded operation over a hard dependency on one key
// rotation going smoothly.
func TrustedRelayListKey(logger *slog.Logger, b64 string) *[32]byte {
	if b64 == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) != 32 {
		logger.Warn("relay list trusted public key invalid, signature verification disabled")
		return nil
	}
	var key [32]byte
	copy(key[:], raw)
	return &key
}

// New wires every subsystem together from cfg. Platform-specific
// constructors (firewall, route, DNS store, tunnel engine, pinger) are
// passed in by main so this package stays buildable on every platform the
// module targets.
func New(
	cfg Config,
	firewallCtl firewall.Controller,
	routeCtl route.Controller,
	dnsStore dns.Store,
	engine tunnelengine.Engine,
	newPinger tsm.PingerFactory,
	trustedRelayListKey *[32]byte,
	logger *slog.Logger,
) (*Daemon, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	restCfg := cfg.API
	client, err := restclient.New(restCfg, cfg.CurrentVersion, logger)
	if err != nil {
		return nil, fmt.Errorf("daemon: control plane client: %w", err)
	}

	relayCache := relaylist.NewCache()
	relayFetcher := relaylist.NewFetcher(client, trustedRelayListKey, logger)
	relaySelector, err := relayselector.New(relayCache, relayselector.RelayConstraints{}, cfg.RelaySelector, nil)
	if err != nil {
		return nil, fmt.Errorf("daemon: relay selector: %w", err)
	}

	dnsMonitor := dns.NewMonitor(dnsStore, dns.Config{}, logger)

	tsmCfg := tsm.Config{
		Firewall:              firewallCtl,
		DNS:                   dnsMonitor,
		Routes:                routeCtl,
		Engine:                engine,
		EngineConfig:          cfg.Engine,
		RelaySelector:         relaySelector,
		NewPinger:             newPinger,
		Logger:                logger,
		AllowLAN:              cfg.AllowLAN,
		AllowedEndpoint:       cfg.AllowedEndpoint(),
		BlockWhenDisconnected: cfg.BlockWhenDisconnected,
		CustomDNSServers:      cfg.CustomDNSServers,
	}
	machine, err := tsm.New(tsmCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("daemon: tunnel state machine: %w", err)
	}

	accessSel := accessmethod.New(cfg.AccessMethod, logger)

	versionChecker, err := versioncheck.New(cfg.VersionCheck, client, logger)
	if err != nil {
		return nil, fmt.Errorf("daemon: version checker: %w", err)
	}

	return &Daemon{
		cfg:           cfg,
		logger:        logger.With("component", "daemon"),
		Machine:       machine,
		AccessMethod:  accessSel,
		VersionCheck:  versionChecker,
		relayCache:    relayCache,
		relayFetcher:  relayFetcher,
		relaySelector: relaySelector,
	}, nil
}

// Run drives every actor and background loop until ctx is cancelled,
// mirroring the teacher's cmd/plexd up.go wait-group fan-out.
func (d *Daemon) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Machine.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.AccessMethod.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.VersionCheck.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runRelayListRefresh(ctx)
	}()

	<-ctx.Done()
	d.logger.Info("daemon shutting down", "reason", ctx.Err())
	wg.Wait()
	d.logger.Info("daemon stopped")
}

func (d *Daemon) runRelayListRefresh(ctx context.Context) {
	if _, err := d.relayFetcher.Refresh(ctx, d.relayCache); err != nil {
		d.logger.Warn("initial relay list fetch failed", "error", err)
	}

	ticker := time.NewTicker(DefaultRelayListRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := d.relayFetcher.Refresh(ctx, d.relayCache)
			if err != nil {
				d.logger.Warn("relay list refresh failed", "error", err)
				continue
			}
			if changed {
				d.logger.Info("relay list updated", "digest", d.relayCache.Digest())
			}
		}
	}
}

// ConnectTunnel requests the tunnel come up.
func (d *Daemon) ConnectTunnel(ctx context.Context) error { return d.Machine.Connect(ctx) }

// DisconnectTunnel requests the tunnel come down.
func (d *Daemon) DisconnectTunnel(ctx context.Context) error { return d.Machine.Disconnect(ctx) }

// ReconnectTunnel tears down any current attempt and starts a fresh one.
func (d *Daemon) ReconnectTunnel(ctx context.Context) error { return d.Machine.Reconnect(ctx) }

// GetTunnelState returns the current tunnel state.
func (d *Daemon) GetTunnelState(ctx context.Context) (tsm.State, error) { return d.Machine.State(ctx) }

// TunnelStateUpdates returns the channel a frontend's EventsListen stream
// would forward: every state the machine enters, best-effort (a slow
// subscriber drops intermediate updates rather than blocking the actor).
func (d *Daemon) TunnelStateUpdates() <-chan tsm.State { return d.Machine.Updates() }

// SetAllowLan updates the AllowLAN preference.
func (d *Daemon) SetAllowLan(ctx context.Context, allow bool) error {
	return d.Machine.SetAllowLan(ctx, allow)
}

// SetBlockWhenDisconnected updates the kill-switch-on-error preference.
func (d *Daemon) SetBlockWhenDisconnected(ctx context.Context, block bool) error {
	return d.Machine.SetBlockWhenDisconnected(ctx, block)
}

// SetDnsOptions updates the custom DNS resolver list.
func (d *Daemon) SetDnsOptions(ctx context.Context, servers []string) error {
	return d.Machine.SetDNS(ctx, servers)
}

// SetRelaySettings narrows the relay selector's candidate pool.
func (d *Daemon) SetRelaySettings(constraints relayselector.RelayConstraints) {
	d.mu.Lock()
	d.constraints = constraints
	d.mu.Unlock()
	d.relaySelector.SetConstraints(constraints)
}

// GetVersionInfo returns the cached (or freshly fetched, if stale) version
// information.
func (d *Daemon) GetVersionInfo(ctx context.Context) (versioncheck.VersionCache, error) {
	return d.VersionCheck.GetVersionInfo(ctx)
}

// SetSettingsPatch validates and merges a settings patch into the
// daemon's stored relay_overrides document (spec.md §6). Application of
// the merged overrides to relay candidate selection is intentionally not
// wired further than storage: relayselector.RelayConstraints' doc comment
// already scopes override application out of the selector itself.
func (d *Daemon) SetSettingsPatch(patch []byte) error {
	if err := settingspatch.Validate(patch); err != nil {
		return fmt.Errorf("daemon: settings patch: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	current := d.settingsRaw
	if current == nil {
		current = []byte("{}")
	}
	merged, err := settingspatch.Merge(current, patch)
	if err != nil {
		return fmt.Errorf("daemon: settings patch: %w", err)
	}
	d.settingsRaw = merged
	return nil
}

// SettingsPatch returns the currently stored merged settings document.
func (d *Daemon) SettingsPatch() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settingsRaw
}

// NewPingerFactory builds a tsm.PingerFactory that pings target (the
// tunnel's gateway address, e.g. the WireGuard tunnel's peer-assigned
// resolver) over whatever interface a connection attempt names.
func NewPingerFactory(target net.IP) tsm.PingerFactory {
	return func(iface string) (connectivity.Pinger, error) {
		return connectivity.NewICMPPinger(target, iface)
	}
}
