// Package tsm is the Tunnel State Machine (spec.md §4.H): the sole mutator
// of tunnel state, driven by a bounded command channel and tunnel events
// fanned in from the tunnel engine. It owns and sequences the firewall,
// DNS, route, and connectivity-check side effects the rest of the daemon
// depends on. Modeled on the teacher's single-actor mailbox packages
// (internal/accessmethod.Selector) combined with the explicit per-state
// handler shape of a reconciliation loop.
package tsm

import (
	"github.com/tunnelkeep/tunnelkeepd/internal/daemonerr"
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

// Cause is the typed reason a Machine entered Error, re-exported from
// daemonerr so callers of this package don't need a second import just to
// inspect Machine.State().Cause.
type Cause = daemonerr.Cause

// Kind enumerates the states in spec.md §4.H's diagram.
type Kind int

const (
	Disconnected Kind = iota
	Connecting
	Connected
	Disconnecting
	Error
)

func (k Kind) String() string {
	switch k {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// State is the externally observable tunnel state, broadcast to
// subscribers (the control-plane RPC surface's EventsListen) any time it
// changes.
type State struct {
	Kind Kind

	// Connecting/Connected only.
	Params tunnelparams.TunnelParameters
	// Connected only.
	Metadata firewall.TunnelMetadata
	// Error only.
	Cause *Cause
	// Error only: set when the Blocked policy applied on entry to Error
	// itself failed to commit.
	BlockFailure bool
}

// targetState records the user's standing intent, independent of the
// current state, per spec.md §4.H's offline tie-breaking rule: "if
// target_state == Secured, start Connecting" once back online. It
// outlives any single Disconnecting excursion, including ones forced by
// going offline or by a fatal tunnel failure.
type targetState int

const (
	// targetUnsecured means the user last asked to be disconnected.
	targetUnsecured targetState = iota
	// targetSecured means the user wants the tunnel up, even if H is
	// currently routing through Disconnecting/Error to get there.
	targetSecured
)

// afterDisconnect records what enterDisconnecting should transition to
// once teardown completes, decided by the caller before invoking it.
type afterDisconnect struct {
	kind  Kind // Disconnected, Connecting, or Error
	cause *Cause
}
