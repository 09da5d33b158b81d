package tsm

import (
	"context"
	"log/slog"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/connectivity"
	"github.com/tunnelkeep/tunnelkeepd/internal/daemonerr"
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
)

// attempt bundles the per-connection-attempt resources enterDisconnecting
// must free: the engine handle, the channel that tells its monitoring
// goroutine to stop, and the connectivity check's cancel token.
type attempt struct {
	handle   tunnelengine.Handle
	closeCh  chan struct{}
	waitDone chan error
	connTok  *connectivity.CancelToken
	pinger   connectivity.Pinger
}

// Machine is the Tunnel State Machine actor. All state is only ever
// touched from the goroutine started by Run.
type Machine struct {
	cfg    Config
	logger *slog.Logger

	mailbox chan command
	updates chan State

	state State
	// target is the user's standing intent (secured or not), which
	// outlives any single Disconnecting excursion — see targetState.
	target targetState
	// next is decided by the caller right before invoking
	// enterDisconnecting and consumed once teardown completes.
	next afterDisconnect

	retryAttempt int
	cur          *attempt

	allowLAN              bool
	allowedEndpoint       firewall.AllowedEndpoint
	blockWhenDisconnected bool
	customDNSServers      []string
}

// New creates a Machine. Call Run to start its actor goroutine.
func New(cfg Config, logger *slog.Logger) (*Machine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		cfg:                   cfg,
		logger:                logger.With("component", "tsm"),
		mailbox:               make(chan command, cfg.MailboxSize),
		updates:               make(chan State, 1),
		state:                 State{Kind: Disconnected},
		allowLAN:              cfg.AllowLAN,
		allowedEndpoint:       cfg.AllowedEndpoint,
		blockWhenDisconnected: cfg.BlockWhenDisconnected,
		customDNSServers:      cfg.CustomDNSServers,
	}, nil
}

// Updates returns the channel the actor posts its current State to every
// time it changes. Best-effort: the channel holds one state, and a new
// state replaces an unread one, so a slow subscriber misses intermediate
// states but always eventually reads the latest one.
func (m *Machine) Updates() <-chan State {
	return m.updates
}

// Run drives the actor loop until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	m.logger.Info("tunnel state machine started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("tunnel state machine stopped")
			return
		case cmd := <-m.mailbox:
			m.handle(ctx, cmd)
		}
	}
}

func (m *Machine) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		c.ack <- m.onConnect(ctx)
	case disconnectCmd:
		c.ack <- m.onDisconnect(ctx)
	case reconnectCmd:
		c.ack <- m.onReconnect(ctx)
	case blockCmd:
		m.target = targetUnsecured
		m.enterError(ctx, c.cause)
		c.ack <- nil
	case setAllowLanCmd:
		m.allowLAN = c.allow
		c.ack <- m.refreshPolicy(ctx)
	case setDNSCmd:
		m.customDNSServers = c.customServers
		c.ack <- m.refreshPolicy(ctx)
	case setAllowedEndpointCmd:
		m.allowedEndpoint = c.endpoint
		c.ack <- m.refreshPolicy(ctx)
	case setBlockWhenDisconnectedCmd:
		m.blockWhenDisconnected = c.block
		c.ack <- nil
	case setConnectivityCmd:
		c.ack <- m.onSetConnectivity(ctx, c.kind)
	case bypassSocketCmd:
		// Not applicable outside mobile platform builds; accepted as a
		// no-op so frontends sharing one RPC surface don't special-case
		// this daemon. See DESIGN.md.
		c.ack <- nil
	case setExcludedAppsCmd:
		// Not applicable without a split-tunnel driver on this platform;
		// accepted as a no-op. See DESIGN.md.
		c.ack <- nil
	case getStateCmd:
		c.reply <- m.state
	case tunnelEventCmd:
		m.onTunnelEvent(ctx, c)
	case connEstablishedCmd:
		m.onConnectivityEstablished(ctx)
	case connLostCmd:
		m.onConnectivityLost(ctx, c.cause)
	}
}

func (m *Machine) onConnect(ctx context.Context) error {
	m.target = targetSecured
	switch m.state.Kind {
	case Connecting, Connected:
		// Idempotent per spec.md §4.H: a bare Connect never re-enters.
		return nil
	case Disconnecting:
		// The pending after_disconnect target already reflects Connecting
		// or will once it resolves; nothing further to do here.
		return nil
	}
	m.retryAttempt = 0
	m.enterConnecting(ctx)
	return nil
}

func (m *Machine) onReconnect(ctx context.Context) error {
	m.target = targetSecured
	if m.state.Kind == Disconnected || m.state.Kind == Error {
		m.retryAttempt = 0
		m.enterConnecting(ctx)
		return nil
	}
	// Equivalent to Disconnect then Connect, but preserves retryAttempt by
	// routing through enterDisconnecting with a Connecting after-target
	// instead of resetting it to zero.
	m.next = afterDisconnect{kind: Connecting}
	m.enterDisconnecting(ctx)
	return nil
}

func (m *Machine) onDisconnect(ctx context.Context) error {
	m.target = targetUnsecured
	switch m.state.Kind {
	case Disconnected:
		return nil
	case Error:
		if m.blockWhenDisconnected {
			return nil
		}
		m.setState(State{Kind: Disconnected})
		return nil
	}
	m.next = afterDisconnect{kind: Disconnected}
	m.enterDisconnecting(ctx)
	return nil
}

// onSetConnectivity implements the offline tie-breaking rule: going
// offline while Connecting/Connected routes through Disconnecting to
// Error(IsOffline); coming back online while the standing target is
// Secured resumes Connect automatically.
func (m *Machine) onSetConnectivity(ctx context.Context, kind ConnectivityKind) error {
	switch kind {
	case ConnectivityOffline:
		if m.state.Kind == Connecting || m.state.Kind == Connected {
			m.next = afterDisconnect{kind: Error, cause: daemonerr.IsOffline}
			m.enterDisconnecting(ctx)
		}
	case ConnectivityOnline:
		if m.state.Kind == Error && daemonerrIs(m.state.Cause, daemonerr.IsOffline) && m.target == targetSecured {
			m.retryAttempt = 0
			m.enterConnecting(ctx)
		}
	}
	return nil
}

// refreshPolicy recomputes and re-applies the firewall policy for the
// current state, used by preference changes (SetAllowLan, SetDNS,
// SetAllowedEndpoint) that must take effect without a reconnect.
func (m *Machine) refreshPolicy(ctx context.Context) error {
	switch m.state.Kind {
	case Connecting:
		return m.applyConnectingPolicy()
	case Connected:
		if err := m.applyConnectedPolicy(); err != nil {
			return err
		}
		return m.cfg.DNS.Set(m.cfg.EngineConfig.InterfaceName, m.dnsConfig())
	case Error:
		return m.applyBlockedPolicy()
	}
	return nil
}

func (m *Machine) setState(s State) {
	m.state = s
	select {
	case <-m.updates:
	default:
	}
	m.updates <- s
}

func waitWithTimeout(done <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return nil
	}
}

func daemonerrIs(c *daemonerr.Cause, target *daemonerr.Cause) bool {
	if c == nil {
		return false
	}
	return c.Is(target)
}
