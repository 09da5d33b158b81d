// Package tunnelparams defines the connection parameters generated by the
// relay selector for a single connection attempt.
package tunnelparams

import "fmt"

// Endpoint is a wire-reachable address: host:port over a transport protocol.
type Endpoint struct {
	Address  string // IP address, no port
	Port     int
	Protocol string // "tcp" or "udp"
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d/%s", e.Address, e.Port, e.Protocol)
}

// GenericOptions holds protocol-agnostic connection options shared by both
// OpenVPN and WireGuard parameter sets.
type GenericOptions struct {
	EnableIPv6 bool
	MTU        int
}

// OpenVPNParams holds the parameters required to start an OpenVPN tunnel.
type OpenVPNParams struct {
	ConfigPath string
	Proxy      *ProxySettings
	Generic    GenericOptions
}

// ProxySettings describes an upstream proxy OpenVPN should dial through.
type ProxySettings struct {
	Endpoint Endpoint
	Username string
	Password string
}

// Peer is a single WireGuard peer: its public key and wire endpoint.
type Peer struct {
	PublicKey    []byte
	PresharedKey []byte // nil if the tunnel has no PSK
	Endpoint     Endpoint
	AllowedIPs   []string
}

// ObfuscationSettings wraps WireGuard traffic to defeat protocol fingerprinting.
type ObfuscationSettings struct {
	Mode     string // "udp2tcp" or "shadowsocks"
	Endpoint Endpoint
}

// TunnelConfig holds the local WireGuard interface configuration.
type TunnelConfig struct {
	PrivateKey []byte
	Addresses  []string
	MTU        int
}

// WireGuardOptions holds WireGuard-specific tunable parameters.
type WireGuardOptions struct {
	QuantumResistant           bool
	PersistentKeepaliveSeconds int
	ListenPort                 int // 0 lets the kernel pick an ephemeral port
}

// WireGuardParams holds the parameters required to start a WireGuard tunnel.
// ExitPeer is non-nil for a multihop connection: the entry peer is the
// wire-reachable endpoint, and the exit peer is reached through it via
// nested encapsulation.
type WireGuardParams struct {
	Tunnel      TunnelConfig
	EntryPeer   Peer
	ExitPeer    *Peer
	Obfuscation *ObfuscationSettings
	Options     WireGuardOptions
	Generic     GenericOptions
}

// IsMultihop reports whether this configuration routes through an exit peer.
func (w *WireGuardParams) IsMultihop() bool {
	return w.ExitPeer != nil
}

// ExternalEndpoint returns the endpoint that should be reported externally:
// the exit peer's endpoint for multihop, otherwise the entry peer's.
func (w *WireGuardParams) ExternalEndpoint() Endpoint {
	if w.ExitPeer != nil {
		return w.ExitPeer.Endpoint
	}
	return w.EntryPeer.Endpoint
}

// WireEndpoint returns the endpoint the firewall and routing table must use:
// always the entry peer's wire-reachable endpoint, even for multihop.
func (w *WireGuardParams) WireEndpoint() Endpoint {
	return w.EntryPeer.Endpoint
}

// TunnelParameters is either an OpenVPN or a WireGuard parameter set,
// generated fresh by the relay selector for each connection attempt.
type TunnelParameters struct {
	OpenVPN   *OpenVPNParams
	WireGuard *WireGuardParams
}

// IsWireGuard reports whether these parameters describe a WireGuard tunnel.
func (p *TunnelParameters) IsWireGuard() bool {
	return p.WireGuard != nil
}

// Clone returns a deep copy of the parameters so callers may mutate their
// copy without affecting the selector's cached value.
func (p TunnelParameters) Clone() TunnelParameters {
	out := TunnelParameters{}
	if p.OpenVPN != nil {
		ov := *p.OpenVPN
		if p.OpenVPN.Proxy != nil {
			proxy := *p.OpenVPN.Proxy
			ov.Proxy = &proxy
		}
		out.OpenVPN = &ov
	}
	if p.WireGuard != nil {
		wg := *p.WireGuard
		wg.Tunnel.Addresses = append([]string(nil), p.WireGuard.Tunnel.Addresses...)
		wg.EntryPeer.AllowedIPs = append([]string(nil), p.WireGuard.EntryPeer.AllowedIPs...)
		wg.EntryPeer.PresharedKey = append([]byte(nil), p.WireGuard.EntryPeer.PresharedKey...)
		if p.WireGuard.ExitPeer != nil {
			exit := *p.WireGuard.ExitPeer
			exit.AllowedIPs = append([]string(nil), p.WireGuard.ExitPeer.AllowedIPs...)
			wg.ExitPeer = &exit
		}
		if p.WireGuard.Obfuscation != nil {
			obfs := *p.WireGuard.Obfuscation
			wg.Obfuscation = &obfs
		}
		out.WireGuard = &wg
	}
	return out
}
