package tsm

import (
	"context"

	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
)

// Connect requests the tunnel come up. Idempotent while already Connecting
// or Connected.
func (m *Machine) Connect(ctx context.Context) error {
	return m.call(ctx, func(ack chan error) command { return connectCmd{ack: ack} })
}

// Disconnect requests the tunnel come down. If BlockWhenDisconnected is set
// and the machine is in Error, the block stays in effect.
func (m *Machine) Disconnect(ctx context.Context) error {
	return m.call(ctx, func(ack chan error) command { return disconnectCmd{ack: ack} })
}

// Reconnect tears down any current attempt and starts a fresh one,
// preserving retryAttempt rather than resetting it as a bare Connect would.
func (m *Machine) Reconnect(ctx context.Context) error {
	return m.call(ctx, func(ack chan error) command { return reconnectCmd{ack: ack} })
}

// Block forces an immediate transition to Error(cause), used when an
// external component (e.g. the account/device subsystem) must halt traffic
// regardless of the current tunnel state.
func (m *Machine) Block(ctx context.Context, cause *Cause) error {
	return m.call(ctx, func(ack chan error) command { return blockCmd{cause: cause, ack: ack} })
}

// SetAllowLan updates the AllowLAN preference and re-applies the firewall
// policy for the current state without reconnecting.
func (m *Machine) SetAllowLan(ctx context.Context, allow bool) error {
	return m.call(ctx, func(ack chan error) command { return setAllowLanCmd{allow: allow, ack: ack} })
}

// SetDNS updates the custom DNS resolver list and re-applies it if Connected.
func (m *Machine) SetDNS(ctx context.Context, servers []string) error {
	return m.call(ctx, func(ack chan error) command { return setDNSCmd{customServers: servers, ack: ack} })
}

// SetAllowedEndpoint updates the control-plane API carve-out and
// re-applies the firewall policy for the current state.
func (m *Machine) SetAllowedEndpoint(ctx context.Context, ep firewall.AllowedEndpoint) error {
	return m.call(ctx, func(ack chan error) command { return setAllowedEndpointCmd{endpoint: ep, ack: ack} })
}

// SetBlockWhenDisconnected updates whether Disconnect from Error leaves the
// kill-switch engaged instead of returning to Disconnected.
func (m *Machine) SetBlockWhenDisconnected(ctx context.Context, block bool) error {
	return m.call(ctx, func(ack chan error) command { return setBlockWhenDisconnectedCmd{block: block, ack: ack} })
}

// SetConnectivity reports the OS-level network-availability signal, driving
// the offline tie-breaking rule described in spec.md §4.H.
func (m *Machine) SetConnectivity(ctx context.Context, kind ConnectivityKind) error {
	return m.call(ctx, func(ack chan error) command { return setConnectivityCmd{kind: kind, ack: ack} })
}

// BypassSocket is accepted for API parity with mobile builds of this
// daemon; it is a no-op here. See DESIGN.md.
func (m *Machine) BypassSocket(ctx context.Context, fd int) error {
	return m.call(ctx, func(ack chan error) command { return bypassSocketCmd{fd: fd, ack: ack} })
}

// SetExcludedApps is accepted for API parity with split-tunnel-capable
// builds of this daemon; it is a no-op here. See DESIGN.md.
func (m *Machine) SetExcludedApps(ctx context.Context, paths []string) error {
	return m.call(ctx, func(ack chan error) command { return setExcludedAppsCmd{paths: paths, ack: ack} })
}

// State returns the current tunnel state.
func (m *Machine) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case m.mailbox <- getStateCmd{reply: reply}:
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// call posts a command built from an ack channel and waits for its reply,
// honoring ctx cancellation on both the send and the receive side.
func (m *Machine) call(ctx context.Context, build func(ack chan error) command) error {
	ack := make(chan error, 1)
	select {
	case m.mailbox <- build(ack):
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
