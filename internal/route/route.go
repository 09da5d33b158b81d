// Package route manages the routes and default-route tracking needed to
// steer traffic into and out of the tunnel.
package route

import "net"

// Node describes the next hop for a routed prefix. A Node with IsDefault
// set tracks the system's current default route rather than a fixed
// gateway; RealIP is resolved and kept current as the default route changes.
type Node struct {
	RealIP    net.IP
	Device    string
	IsDefault bool
}

// Controller abstracts OS-level route management for testability. All
// methods must be idempotent: repeating an operation that is already
// applied returns nil.
type Controller interface {
	// AddRoutes installs routes for each prefix -> node pairing, replacing
	// any routes this controller previously installed for the same prefix.
	AddRoutes(routes map[string]Node) error
	// ClearRoutes removes every route this controller has added.
	ClearRoutes() error
}
