// Package firewall compiles tunnel-state-derived policy into a platform
// firewall rule set and commits it atomically.
package firewall

import "github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"

// AllowedClients restricts which local processes may reach an AllowedEndpoint
// out of tunnel. Root is a coarse capability class used on platforms without
// per-executable filtering.
type AllowedClients int

const (
	ClientsRoot AllowedClients = iota
	ClientsAll
)

// AllowedEndpoint is an exception to the kill-switch: one endpoint the
// firewall admits regardless of tunnel state, subject to the client
// restriction. At least one AllowedEndpoint (the control-plane API) must
// always be reachable.
type AllowedEndpoint struct {
	Endpoint tunnelparams.Endpoint
	Clients  AllowedClients
}

// TrafficKind tags the AllowedTunnelTraffic variant in effect.
type TrafficKind int

const (
	TrafficNone TrafficKind = iota
	TrafficAll
	TrafficOne
	TrafficTwo
)

// AllowedTunnelTraffic restricts what is reachable over the tunnel interface
// while the tunnel is not yet fully trusted (PSK/ephemeral-peer negotiation).
type AllowedTunnelTraffic struct {
	Kind TrafficKind
	One  tunnelparams.Endpoint
	Two  tunnelparams.Endpoint
}

// TunnelMetadata describes the live tunnel interface once it has come up.
type TunnelMetadata struct {
	Interface string
}

// PolicyKind tags the FirewallPolicy variant in effect.
type PolicyKind int

const (
	PolicyConnecting PolicyKind = iota
	PolicyConnected
	PolicyBlocked
)

// Policy is derivable from tunnel-state-machine state plus user preferences.
// Applying the same policy twice must be idempotent.
type Policy struct {
	Kind PolicyKind

	// Common to Connecting/Connected/Blocked.
	AllowLAN bool

	// Connecting and Connected.
	PeerEndpoint         tunnelparams.Endpoint
	AllowedTunnelTraffic AllowedTunnelTraffic

	// Connecting (nil until the tunnel interface exists) and Connected.
	TunnelMetadata *TunnelMetadata

	// Connecting and Connected: the API endpoint carve-out, always present.
	AllowedEndpoint AllowedEndpoint

	// Connected only.
	DNSServers []string

	// Blocked only: the API endpoint carve-out may be unavailable
	// (force-direct override disabled it).
	BlockedAllowedEndpoint *AllowedEndpoint
}
