package tsm

import "github.com/tunnelkeep/tunnelkeepd/internal/firewall"

// command is the private mailbox message type the Machine actor consumes.
// Every implementation resolves exactly one ack channel on every code
// path, mirroring the teacher's Executor ActionAck/ActionResult two-phase
// report pattern.
type command interface {
	isCommand()
}

// ConnectivityKind enumerates the network-availability signal the daemon's
// OS-level monitor feeds into SetConnectivity.
type ConnectivityKind int

const (
	ConnectivityOnline ConnectivityKind = iota
	ConnectivityOffline
	ConnectivityPresumed
)

type connectCmd struct{ ack chan error }

func (connectCmd) isCommand() {}

type disconnectCmd struct{ ack chan error }

func (disconnectCmd) isCommand() {}

type reconnectCmd struct{ ack chan error }

func (reconnectCmd) isCommand() {}

type blockCmd struct {
	cause *Cause
	ack   chan error
}

func (blockCmd) isCommand() {}

type setAllowLanCmd struct {
	allow bool
	ack   chan error
}

func (setAllowLanCmd) isCommand() {}

type setDNSCmd struct {
	customServers []string
	ack           chan error
}

func (setDNSCmd) isCommand() {}

type setAllowedEndpointCmd struct {
	endpoint firewall.AllowedEndpoint
	ack      chan error
}

func (setAllowedEndpointCmd) isCommand() {}

type setBlockWhenDisconnectedCmd struct {
	block bool
	ack   chan error
}

func (setBlockWhenDisconnectedCmd) isCommand() {}

type setConnectivityCmd struct {
	kind ConnectivityKind
	ack  chan error
}

func (setConnectivityCmd) isCommand() {}

// bypassSocketCmd backs BypassSocket, relevant only on mobile platforms
// this daemon does not target; it is accepted and acked but otherwise a
// no-op here (see DESIGN.md).
type bypassSocketCmd struct {
	fd  int
	ack chan error
}

func (bypassSocketCmd) isCommand() {}

// setExcludedAppsCmd backs SetExcludedApps, relevant only on split-tunnel-
// capable platforms; accepted and acked, otherwise a no-op here (see
// DESIGN.md).
type setExcludedAppsCmd struct {
	paths []string
	ack   chan error
}

func (setExcludedAppsCmd) isCommand() {}

type getStateCmd struct {
	reply chan State
}

func (getStateCmd) isCommand() {}

// tunnelEventCmd wraps a tunnelengine.Event from the tunnel engine so it can be
// multiplexed onto the same mailbox as user commands, keeping all state
// mutation on a single actor goroutine.
type tunnelEventCmd struct {
	up   bool
	err  error
	done chan<- struct{}
}

func (tunnelEventCmd) isCommand() {}

// connEstablishedCmd is posted by a connection attempt's background
// connectivity watcher once EstablishConnectivity first succeeds. Fire and
// forget: nothing blocks on it, so it carries no reply channel.
type connEstablishedCmd struct{}

func (connEstablishedCmd) isCommand() {}

// connLostCmd is posted by the background connectivity watcher when the
// establish phase times out or a running tunnel's liveness check fails.
type connLostCmd struct {
	cause *Cause
}

func (connLostCmd) isCommand() {}
