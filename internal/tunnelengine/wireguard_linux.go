//go:build linux

package tunnelengine

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

// wireguardHandle identifies a running WireGuard interface.
type wireguardHandle struct {
	iface  string
	exitCh chan struct{}
}

func (*wireguardHandle) isHandle() {}

// WireGuardEngine implements Engine for WireGuard tunnels using wgctrl for
// device/peer configuration and netlink for interface lifecycle.
type WireGuardEngine struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*wireguardHandle
}

// NewWireGuardEngine returns a new WireGuardEngine.
func NewWireGuardEngine(cfg Config, logger *slog.Logger) *WireGuardEngine {
	cfg.ApplyDefaults()
	return &WireGuardEngine{
		cfg:     cfg,
		logger:  logger.With("component", "tunnelengine", "protocol", "wireguard"),
		handles: make(map[string]*wireguardHandle),
	}
}

// Start creates the WireGuard interface, assigns its address, configures
// the entry (and, for multihop, exit) peer, and brings the link up.
func (e *WireGuardEngine) Start(ctx context.Context, params tunnelparams.TunnelParameters, eventCb EventFunc, closeRx <-chan struct{}) (Handle, error) {
	wg := params.WireGuard
	if wg == nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: no WireGuard parameters set")
	}

	iface := e.cfg.InterfaceName

	la := netlink.NewLinkAttrs()
	la.Name = iface
	link := &netlink.GenericLink{LinkAttrs: la, LinkType: "wireguard"}
	if err := netlink.LinkAdd(link); err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: create interface: %w", err)
	}

	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: open wgctrl: %w", err)
	}
	defer client.Close()

	privKey, err := wgtypes.NewKey(wg.Tunnel.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: parse private key: %w", err)
	}

	listenPort := wg.Options.ListenPort
	devCfg := wgtypes.Config{PrivateKey: &privKey}
	if listenPort != 0 {
		devCfg.ListenPort = &listenPort
	}
	if err := client.ConfigureDevice(iface, devCfg); err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: configure device: %w", err)
	}

	for _, addr := range wg.Tunnel.Addresses {
		netlinkLink, err := netlink.LinkByName(iface)
		if err != nil {
			return nil, fmt.Errorf("tunnelengine: wireguard: start: lookup interface: %w", err)
		}
		a, err := netlink.ParseAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("tunnelengine: wireguard: start: parse address %q: %w", addr, err)
		}
		if err := netlink.AddrAdd(netlinkLink, a); err != nil {
			return nil, fmt.Errorf("tunnelengine: wireguard: start: configure address %q: %w", addr, err)
		}
	}

	peerConfigs, err := peerConfigsFor(wg)
	if err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: %w", err)
	}
	if err := client.ConfigureDevice(iface, wgtypes.Config{Peers: peerConfigs}); err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: configure peers: %w", err)
	}

	link2, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: lookup interface: %w", err)
	}
	if wg.Tunnel.MTU != 0 {
		if err := netlink.LinkSetMTU(link2, wg.Tunnel.MTU); err != nil {
			return nil, fmt.Errorf("tunnelengine: wireguard: start: set mtu: %w", err)
		}
	}
	if err := netlink.LinkSetUp(link2); err != nil {
		return nil, fmt.Errorf("tunnelengine: wireguard: start: set interface up: %w", err)
	}

	h := &wireguardHandle{iface: iface, exitCh: make(chan struct{})}
	e.mu.Lock()
	e.handles[iface] = h
	e.mu.Unlock()

	e.logger.Info("wireguard tunnel up", "interface", iface, "multihop", wg.IsMultihop())

	if eventCb != nil {
		ack := make(chan struct{})
		eventCb(Event{Kind: EventUp, Ack: ack})
		<-ack
	}

	go func() {
		select {
		case <-closeRx:
		case <-ctx.Done():
		case <-h.exitCh:
		}
	}()

	return h, nil
}

// peerConfigsFor builds the wgctrl peer list. In a multihop configuration
// the entry peer's AllowedIPs cover only the wire path to the exit peer,
// while WireEndpoint/ExternalEndpoint on TunnelParameters already resolve
// which address is reported externally — the engine only ever dials the
// entry peer's wire endpoint.
func peerConfigsFor(wg *tunnelparams.WireGuardParams) ([]wgtypes.PeerConfig, error) {
	entry, err := peerConfigFrom(wg.EntryPeer)
	if err != nil {
		return nil, fmt.Errorf("entry peer: %w", err)
	}
	peers := []wgtypes.PeerConfig{entry}

	if wg.ExitPeer != nil {
		exit, err := peerConfigFrom(*wg.ExitPeer)
		if err != nil {
			return nil, fmt.Errorf("exit peer: %w", err)
		}
		peers = append(peers, exit)
	}
	return peers, nil
}

func peerConfigFrom(p tunnelparams.Peer) (wgtypes.PeerConfig, error) {
	pubKey, err := wgtypes.NewKey(p.PublicKey)
	if err != nil {
		return wgtypes.PeerConfig{}, fmt.Errorf("parse public key: %w", err)
	}

	cfg := wgtypes.PeerConfig{PublicKey: pubKey, ReplaceAllowedIPs: true}

	if p.Endpoint.Address != "" {
		udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", p.Endpoint.Address, p.Endpoint.Port))
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("resolve endpoint: %w", err)
		}
		cfg.Endpoint = udpAddr
	}

	for _, cidr := range p.AllowedIPs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("parse allowed IP %q: %w", cidr, err)
		}
		cfg.AllowedIPs = append(cfg.AllowedIPs, *ipNet)
	}

	if len(p.PresharedKey) > 0 {
		psk, err := wgtypes.NewKey(p.PresharedKey)
		if err != nil {
			return wgtypes.PeerConfig{}, fmt.Errorf("parse psk: %w", err)
		}
		cfg.PresharedKey = &psk
	}

	return cfg, nil
}

// Wait blocks until the tunnel's monitoring goroutine observes a shutdown.
func (e *WireGuardEngine) Wait(h Handle) error {
	wh, ok := h.(*wireguardHandle)
	if !ok {
		return fmt.Errorf("tunnelengine: wireguard: wait: wrong handle type")
	}
	<-wh.exitCh
	return nil
}

// Kill tears down the WireGuard interface. Interface deletion is a single
// netlink call with no partial-teardown state, so there is no nice-kill
// phase distinct from hard-kill the way there is for an external process.
func (e *WireGuardEngine) Kill(h Handle) {
	wh, ok := h.(*wireguardHandle)
	if !ok {
		return
	}

	e.mu.Lock()
	delete(e.handles, wh.iface)
	e.mu.Unlock()

	link, err := netlink.LinkByName(wh.iface)
	if err == nil {
		if delErr := netlink.LinkDel(link); delErr != nil {
			e.logger.Warn("failed to delete wireguard interface", "interface", wh.iface, "error", delErr)
		}
	}

	close(wh.exitCh)
	e.logger.Info("wireguard tunnel torn down", "interface", wh.iface)
}

// GetStats reads the peer byte counters the connectivity check polls. In a
// multihop configuration the counters reported are the entry peer's, since
// that is the wire hop actually carrying traffic from this host.
func (e *WireGuardEngine) GetStats(h Handle) (PeerStats, error) {
	wh, ok := h.(*wireguardHandle)
	if !ok {
		return PeerStats{}, fmt.Errorf("tunnelengine: wireguard: get stats: wrong handle type")
	}

	client, err := wgctrl.New()
	if err != nil {
		return PeerStats{}, fmt.Errorf("tunnelengine: wireguard: get stats: open wgctrl: %w", err)
	}
	defer client.Close()

	dev, err := client.Device(wh.iface)
	if err != nil {
		return PeerStats{}, fmt.Errorf("tunnelengine: wireguard: get stats: %w", err)
	}
	if len(dev.Peers) == 0 {
		return PeerStats{}, fmt.Errorf("tunnelengine: wireguard: get stats: no peers configured")
	}

	p := dev.Peers[0]
	return PeerStats{RxBytes: uint64(p.ReceiveBytes), TxBytes: uint64(p.TransmitBytes)}, nil
}

// SetConfig reconfigures the peers on an already-running WireGuard
// interface without tearing down the tunnel.
func (e *WireGuardEngine) SetConfig(h Handle, params tunnelparams.TunnelParameters) error {
	wh, ok := h.(*wireguardHandle)
	if !ok {
		return fmt.Errorf("tunnelengine: wireguard: set config: wrong handle type")
	}
	if params.WireGuard == nil {
		return fmt.Errorf("tunnelengine: wireguard: set config: no WireGuard parameters set")
	}

	peerConfigs, err := peerConfigsFor(params.WireGuard)
	if err != nil {
		return fmt.Errorf("tunnelengine: wireguard: set config: %w", err)
	}

	client, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("tunnelengine: wireguard: set config: open wgctrl: %w", err)
	}
	defer client.Close()

	if err := client.ConfigureDevice(wh.iface, wgtypes.Config{
		ReplacePeers: true,
		Peers:        peerConfigs,
	}); err != nil {
		return fmt.Errorf("tunnelengine: wireguard: set config: %w", err)
	}
	return nil
}
