// Package tunnelengine adapts a concrete VPN wire protocol (WireGuard or
// OpenVPN) to a single Engine interface the tunnel state machine can drive
// without caring which protocol is active.
package tunnelengine

import (
	"context"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

// Handle identifies a running tunnel instance. Engines may use any
// underlying representation; callers treat it opaquely.
type Handle interface {
	isHandle()
}

// PeerStats carries the byte counters the connectivity check polls.
type PeerStats struct {
	RxBytes uint64
	TxBytes uint64
}

// EventKind enumerates the lifecycle events an Engine reports back through
// EventFunc.
type EventKind int

const (
	// EventUp reports that the tunnel interface is configured and ready.
	EventUp EventKind = iota
	// EventDown reports that the tunnel process has exited.
	EventDown
)

// Event is delivered to the caller's EventFunc. Ack must be closed by the
// caller once any side effect required by the event (e.g. applying a
// firewall policy) has been applied, so the engine can serialize further
// state transitions against it.
type Event struct {
	Kind EventKind
	Err  error // set when Kind == EventDown and the exit was abnormal
	Ack  chan<- struct{}
}

// EventFunc receives lifecycle events from a running tunnel.
type EventFunc func(Event)

// Engine starts, monitors, and tears down a tunnel for one wire protocol.
type Engine interface {
	// Start brings up the tunnel described by params. eventCb is invoked
	// for lifecycle events; closeRx is closed by the caller to request a
	// graceful shutdown of the monitoring goroutine (not the tunnel itself
	// — use Kill for that).
	Start(ctx context.Context, params tunnelparams.TunnelParameters, eventCb EventFunc, closeRx <-chan struct{}) (Handle, error)
	// Wait blocks until the tunnel process started by Start exits.
	Wait(h Handle) error
	// Kill tears down the tunnel, sending a graceful signal first and
	// escalating to a forced kill after Config.DieTimeout.
	Kill(h Handle)
	// GetStats returns the current byte counters for the tunnel's peer(s).
	GetStats(h Handle) (PeerStats, error)
	// SetConfig pushes a new set of parameters to an already-running
	// tunnel without tearing it down, where the protocol supports it.
	SetConfig(h Handle, params tunnelparams.TunnelParameters) error
}
