// Package accessmethod rotates how the daemon reaches the control-plane API
// when the current access method is blocked or unreachable.
package accessmethod

import (
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

// MethodKind tags the variant held by a Method.
type MethodKind int

const (
	MethodDirect MethodKind = iota
	MethodBridges
	MethodShadowsocks
	MethodSocks5Local
	MethodSocks5Remote
)

// ShadowsocksParams configures a Shadowsocks proxy hop.
type ShadowsocksParams struct {
	Endpoint tunnelparams.Endpoint
	Cipher   string
	Password string
}

// Socks5LocalParams configures a locally-running SOCKS5 proxy that itself
// forwards through another access method.
type Socks5LocalParams struct {
	LocalPort    int
	RemoteEndpoint tunnelparams.Endpoint
}

// Socks5RemoteParams configures a remote SOCKS5 proxy reached directly.
type Socks5RemoteParams struct {
	Endpoint tunnelparams.Endpoint
	Username string
	Password string
}

// Method is a tagged union of the ways the control-plane API can be reached.
// Only the field matching Kind is populated.
type Method struct {
	Kind        MethodKind
	Shadowsocks *ShadowsocksParams
	Socks5Local *Socks5LocalParams
	Socks5Remote *Socks5RemoteParams
}

// Setting is one configured access method, enabled or not.
type Setting struct {
	ID      string
	Name    string
	Enabled bool
	Method  Method
}

// ApiConnectionMode describes how the REST client should dial the
// control-plane API for a resolved setting.
type ApiConnectionMode struct {
	Kind        MethodKind
	ProxyAddr   tunnelparams.Endpoint
	Shadowsocks *ShadowsocksParams
}

// ResolvedConnectionMode pairs a Setting with how to dial it and what the
// firewall must permit while it is active.
type ResolvedConnectionMode struct {
	Setting         Setting
	Mode            ApiConnectionMode
	AllowedEndpoint firewall.AllowedEndpoint
}

// Event is emitted on every Rotate. Done must be closed by the subscriber
// once the new AllowedEndpoint has been committed to the firewall; the
// REST client must not use the new mode before that happens.
type Event struct {
	New  ResolvedConnectionMode
	Done chan<- struct{}
}
