package tsm

import (
	"context"
	"errors"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/connectivity"
	"github.com/tunnelkeep/tunnelkeepd/internal/daemonerr"
	"github.com/tunnelkeep/tunnelkeepd/internal/dns"
	"github.com/tunnelkeep/tunnelkeepd/internal/firewall"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

// defaultTunnelDNSServer is used for DNS enforcement when the user has not
// configured custom resolvers.
const defaultTunnelDNSServer = "10.64.0.1"

// enterConnecting generates fresh tunnel parameters, commits the Connecting
// firewall policy, starts the engine, and spawns the background watcher
// that will report EstablishConnectivity's outcome back through the
// mailbox.
func (m *Machine) enterConnecting(ctx context.Context) {
	m.teardownAttempt()

	params, err := m.cfg.RelaySelector.Generate(ctx, m.retryAttempt)
	if err != nil {
		m.enterError(ctx, daemonerr.Wrap(daemonerr.TunnelParameterError, err))
		return
	}

	m.setState(State{Kind: Connecting, Params: params})
	if err := m.applyConnectingPolicy(); err != nil {
		m.enterError(ctx, daemonerr.Wrap(daemonerr.SetFirewallPolicyError, err))
		return
	}

	closeCh := make(chan struct{})
	handle, err := m.cfg.Engine.Start(ctx, params, m.tunnelEventCallback, closeCh)
	if err != nil {
		m.enterError(ctx, daemonerr.Wrap(daemonerr.TunnelParameterError, err))
		return
	}

	pinger, err := m.cfg.NewPinger(m.cfg.EngineConfig.InterfaceName)
	if err != nil {
		m.cfg.Engine.Kill(handle)
		m.enterError(ctx, daemonerr.Wrap(daemonerr.TunnelParameterError, err))
		return
	}

	connTok, connRecv := connectivity.NewCancelToken()
	check := connectivity.NewCheck(pinger, m.retryAttempt, connRecv, m.logger)

	m.cur = &attempt{handle: handle, closeCh: closeCh, connTok: connTok, pinger: pinger}

	go m.watchConnecting(ctx, handle, check)
}

// tunnelEventCallback is passed to Engine.Start. EventUp fires synchronously
// on the actor goroutine from inside Start itself, so it is acked inline;
// EventDown fires later from the engine's own monitoring goroutine and must
// be routed through the mailbox so the actor can commit a Blocked firewall
// policy before acking, preserving the happens-before barrier between
// tunnel teardown and the next packet filter state.
func (m *Machine) tunnelEventCallback(ev tunnelengine.Event) {
	if ev.Kind == tunnelengine.EventUp {
		close(ev.Ack)
		return
	}
	m.mailbox <- tunnelEventCmd{up: false, err: ev.Err, done: ev.Ack}
}

// watchConnecting drives the establish phase in the background, never
// touching Machine state directly, and reports the outcome back onto the
// mailbox so every state mutation stays on the actor goroutine.
func (m *Machine) watchConnecting(ctx context.Context, h tunnelengine.Handle, check *connectivity.Check) {
	ok, err := check.EstablishConnectivity(ctx, h, m.cfg.Engine)
	if check.ShouldShutDown() {
		return
	}
	if err != nil {
		m.mailbox <- connLostCmd{cause: daemonerr.Wrap(daemonerr.TunnelParameterError, err)}
		return
	}
	if !ok {
		m.mailbox <- connLostCmd{cause: daemonerr.IsOffline}
		return
	}
	m.mailbox <- connEstablishedCmd{}
	m.watchConnected(ctx, h, check)
}

// watchConnected polls liveness once a tunnel is already up, using the same
// ticker-and-select idiom as connectivity.Check's own establish loop.
func (m *Machine) watchConnected(ctx context.Context, h tunnelengine.Handle, check *connectivity.Check) {
	ticker := time.NewTicker(connectivity.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if check.ShouldShutDown() {
				return
			}
			ok, err := check.CheckConnectivity(now, h, m.cfg.Engine)
			if err != nil {
				m.mailbox <- connLostCmd{cause: daemonerr.Wrap(daemonerr.TunnelParameterError, err)}
				return
			}
			if !ok {
				m.mailbox <- connLostCmd{cause: daemonerr.IsOffline}
				return
			}
		}
	}
}

// onConnectivityEstablished transitions Connecting to Connected once the
// background watcher confirms the tunnel is passing traffic.
func (m *Machine) onConnectivityEstablished(ctx context.Context) {
	if m.state.Kind != Connecting {
		return
	}
	meta := firewall.TunnelMetadata{Interface: m.cfg.EngineConfig.InterfaceName}
	m.setState(State{Kind: Connected, Params: m.state.Params, Metadata: meta})

	if err := m.applyConnectedPolicy(); err != nil {
		m.enterError(ctx, daemonerr.Wrap(daemonerr.SetFirewallPolicyError, err))
		return
	}
	if err := m.cfg.DNS.Set(m.cfg.EngineConfig.InterfaceName, m.dnsConfig()); err != nil {
		m.logger.Warn("failed to enforce DNS on connect", "error", err)
	}
}

// onConnectivityLost handles both a failed establish phase and a liveness
// failure on an already-Connected tunnel identically: tear down the current
// attempt and either retry or fail depending on the cause.
func (m *Machine) onConnectivityLost(ctx context.Context, cause *Cause) {
	if m.state.Kind != Connecting && m.state.Kind != Connected {
		return
	}
	m.teardownAttempt()
	m.retryOrFail(ctx, cause)
}

// onTunnelEvent handles an EventDown delivered through the mailbox: the
// tunnel process exited on its own, not as a result of our own Kill.
func (m *Machine) onTunnelEvent(ctx context.Context, c tunnelEventCmd) {
	defer close(c.done)
	if c.up {
		return
	}
	if m.state.Kind != Connecting && m.state.Kind != Connected {
		return
	}
	cause := classifyTunnelExit(c.err)
	m.teardownAttempt()
	m.retryOrFail(ctx, cause)
}

// retryOrFail is the shared policy for any unplanned loss of the tunnel:
// fatal causes (auth, configuration, unsupported OS state) reset the retry
// counter and land in Error; anything else is retried with an incremented
// retryAttempt, per spec.md §4.H.
func (m *Machine) retryOrFail(ctx context.Context, cause *Cause) {
	if cause.IsFatal() {
		m.retryAttempt = 0
		m.enterError(ctx, cause)
		return
	}
	m.retryAttempt++
	m.enterConnecting(ctx)
}

func classifyTunnelExit(err error) *Cause {
	if err == nil {
		return daemonerr.Wrap(daemonerr.TunnelParameterError, errors.New("tunnel process exited unexpectedly"))
	}
	if cause, ok := daemonerr.As(err); ok {
		return cause
	}
	return daemonerr.Wrap(daemonerr.TunnelParameterError, err)
}

// teardownAttempt releases every resource tied to the current connection
// attempt, if any. Safe to call when there is no current attempt.
func (m *Machine) teardownAttempt() {
	if m.cur == nil {
		return
	}
	cur := m.cur
	m.cur = nil

	close(cur.closeCh)
	if cur.connTok != nil {
		cur.connTok.Close()
	}
	if cur.pinger != nil {
		_ = cur.pinger.Close()
	}
	if cur.handle != nil {
		m.cfg.Engine.Kill(cur.handle)
	}
}

// enterDisconnecting tears down the current attempt, if any, waiting up to
// DieTimeout for the engine to confirm exit, then routes to whatever
// afterDisconnect was staged by the caller before this was invoked.
func (m *Machine) enterDisconnecting(ctx context.Context) {
	m.setState(State{Kind: Disconnecting})

	cur := m.cur
	m.cur = nil
	if cur != nil {
		close(cur.closeCh)
		if cur.connTok != nil {
			cur.connTok.Close()
		}
		if cur.pinger != nil {
			_ = cur.pinger.Close()
		}
		m.cfg.Engine.Kill(cur.handle)

		waitCh := make(chan error, 1)
		go func() { waitCh <- m.cfg.Engine.Wait(cur.handle) }()
		_ = waitWithTimeout(waitCh, m.cfg.DieTimeout)
	}

	next := m.next
	m.next = afterDisconnect{}

	switch next.kind {
	case Connecting:
		m.enterConnecting(ctx)
	case Error:
		m.enterError(ctx, next.cause)
	default:
		_ = m.cfg.Routes.ClearRoutes()
		m.setState(State{Kind: Disconnected})
	}
}

// enterError commits the Blocked firewall policy and records cause as the
// observable state. A failure to commit the Blocked policy itself is
// recorded via BlockFailure rather than retried, per spec.md §7.3.
func (m *Machine) enterError(ctx context.Context, cause *Cause) {
	m.teardownAttempt()
	_ = m.cfg.Routes.ClearRoutes()

	blockFailure := false
	if err := m.applyBlockedPolicy(); err != nil {
		m.logger.Error("failed to apply blocked firewall policy", "error", err)
		blockFailure = true
	}

	c := cause
	if blockFailure {
		c = cause.WithBlockFailure()
	}
	m.setState(State{Kind: Error, Cause: c, BlockFailure: blockFailure})
}

// applyConnectingPolicy recompiles and applies the Connecting firewall
// policy for the current state's Params. The tunnel interface does not
// exist yet at this point, so TunnelMetadata stays nil; only the peer
// endpoint and the AllowedTunnelTraffic restriction are in effect.
func (m *Machine) applyConnectingPolicy() error {
	policy := firewall.Policy{
		Kind:                 firewall.PolicyConnecting,
		AllowLAN:             m.allowLAN,
		PeerEndpoint:         wireEndpoint(m.state.Params),
		AllowedTunnelTraffic: firewall.AllowedTunnelTraffic{Kind: firewall.TrafficNone},
		AllowedEndpoint:      m.allowedEndpoint,
	}
	return m.cfg.Firewall.Apply(firewall.Compile(policy))
}

// applyConnectedPolicy recompiles and applies the Connected firewall
// policy: the tunnel interface is up, so TunnelMetadata is set and all
// tunnel traffic is allowed, restricted to the enforced DNS resolvers.
func (m *Machine) applyConnectedPolicy() error {
	meta := m.state.Metadata
	policy := firewall.Policy{
		Kind:                 firewall.PolicyConnected,
		AllowLAN:             m.allowLAN,
		PeerEndpoint:         wireEndpoint(m.state.Params),
		AllowedTunnelTraffic: firewall.AllowedTunnelTraffic{Kind: firewall.TrafficAll},
		TunnelMetadata:       &meta,
		AllowedEndpoint:      m.allowedEndpoint,
		DNSServers:           m.dnsConfig().Servers,
	}
	return m.cfg.Firewall.Apply(firewall.Compile(policy))
}

// applyBlockedPolicy recompiles and applies the Blocked firewall policy:
// everything denied except loopback, DHCP, LAN (if allowed), and the API
// AllowedEndpoint.
func (m *Machine) applyBlockedPolicy() error {
	ep := m.allowedEndpoint
	policy := firewall.Policy{
		Kind:                   firewall.PolicyBlocked,
		AllowLAN:               m.allowLAN,
		BlockedAllowedEndpoint: &ep,
	}
	return m.cfg.Firewall.Apply(firewall.Compile(policy))
}

// dnsConfig returns the resolver list to enforce once Connected: the user's
// custom servers if set, otherwise the tunnel's own default resolver.
func (m *Machine) dnsConfig() dns.ResolverConfig {
	if len(m.customDNSServers) > 0 {
		return dns.ResolverConfig{Servers: m.customDNSServers}
	}
	return dns.ResolverConfig{Servers: []string{defaultTunnelDNSServer}}
}

// wireEndpoint extracts the wire-reachable peer endpoint the firewall must
// carve out. OpenVPN tunnels run as their own subprocess outside this
// packet-filter model, so there is no peer endpoint to report for them.
func wireEndpoint(params tunnelparams.TunnelParameters) tunnelparams.Endpoint {
	if params.WireGuard != nil {
		return params.WireGuard.WireEndpoint()
	}
	return tunnelparams.Endpoint{}
}
