// Package connectivity verifies that a running tunnel is actually passing
// traffic, biased toward trusting received bytes over sent probes.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
)

// CancelToken stops a Check. Closing it is safe to call more than once and
// cancels every CancelReceiver derived from it.
type CancelToken struct {
	closed atomic.Bool
	ch     chan struct{}
	once   sync.Once
}

// NewCancelToken returns a token and its receiver.
func NewCancelToken() (*CancelToken, *CancelReceiver) {
	t := &CancelToken{ch: make(chan struct{})}
	return t, &CancelReceiver{token: t}
}

// Close stops the Check. Safe to call more than once.
func (t *CancelToken) Close() {
	t.once.Do(func() {
		t.closed.Store(true)
		close(t.ch)
	})
}

// CancelReceiver is passed to a Check; the corresponding CancelToken's
// Close stops it.
type CancelReceiver struct {
	token *CancelToken
}

func (r *CancelReceiver) closed() bool { return r.token.closed.Load() }
func (r *CancelReceiver) done() <-chan struct{} { return r.token.ch }

// pingState tracks outstanding liveness probes.
type pingState struct {
	initialPingTimestamp time.Time // zero if no ping outstanding
	numPingsSent         uint32
	pinger               Pinger
}

func newPingState(pinger Pinger) pingState {
	return pingState{pinger: pinger}
}

func (p *pingState) pingTimedOut(now time.Time, timeout time.Duration) bool {
	if p.initialPingTimestamp.IsZero() {
		return false
	}
	return now.Sub(p.initialPingTimestamp) > timeout
}

func (p *pingState) reset() {
	p.initialPingTimestamp = time.Time{}
	p.numPingsSent = 0
	p.pinger.Reset()
}

// Check verifies a single tunnel's connectivity over its lifetime. It is
// not safe for concurrent use from multiple goroutines.
type Check struct {
	conn         connState
	ping         pingState
	cancel       *CancelReceiver
	retryAttempt int
	logger       *slog.Logger
}

// NewCheck creates a Check against the given pinger, for the given retry
// attempt (used to scale the establish-phase timeout).
func NewCheck(pinger Pinger, retryAttempt int, cancel *CancelReceiver, logger *slog.Logger) *Check {
	return &Check{
		conn:         newConnState(time.Now()),
		ping:         newPingState(pinger),
		cancel:       cancel,
		retryAttempt: retryAttempt,
		logger:       logger.With("component", "connectivity"),
	}
}

// EstablishConnectivity sends an initial ping to prod the handshake and
// polls until connectivity is observed, the cancel token fires, or the
// establish-phase timeout (scaled by retry attempt, capped) elapses.
func (c *Check) EstablishConnectivity(ctx context.Context, h tunnelengine.Handle, eng tunnelengine.Engine) (bool, error) {
	if err := c.ping.pinger.SendICMP(ctx); err != nil {
		return false, fmt.Errorf("connectivity: establish: initial ping: %w", err)
	}

	timeout := establishTimeoutFor(c.retryAttempt)
	return c.establishInner(ctx, h, eng, timeout)
}

// establishTimeoutFor doubles EstablishTimeout per retry attempt, capped at
// MaxEstablishTimeout.
func establishTimeoutFor(retryAttempt int) time.Duration {
	timeout := EstablishTimeout
	for i := 0; i < retryAttempt; i++ {
		timeout *= EstablishTimeoutMultiplier
		if timeout >= MaxEstablishTimeout {
			return MaxEstablishTimeout
		}
	}
	if timeout > MaxEstablishTimeout {
		return MaxEstablishTimeout
	}
	return timeout
}

func (c *Check) establishInner(ctx context.Context, h tunnelengine.Handle, eng tunnelengine.Engine, timeout time.Duration) (bool, error) {
	if c.conn.connected() {
		return true, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-c.cancel.done():
			return false, nil
		case <-deadline.C:
			return false, nil
		case now := <-ticker.C:
			ok, err := c.checkConnectivityInterval(now, timeout, h, eng)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
}

// ShouldShutDown reports whether the cancel token has fired.
func (c *Check) ShouldShutDown() bool {
	return c.cancel.closed()
}

// CheckConnectivity does a single poll-and-classify pass using the
// steady-state PingTimeout, for use once a connection is already running.
func (c *Check) CheckConnectivity(now time.Time, h tunnelengine.Handle, eng tunnelengine.Engine) (bool, error) {
	return c.checkConnectivityInterval(now, PingTimeout, h, eng)
}

func (c *Check) checkConnectivityInterval(now time.Time, timeout time.Duration, h tunnelengine.Handle, eng tunnelengine.Engine) (bool, error) {
	stats, err := eng.GetStats(h)
	if err != nil {
		return false, fmt.Errorf("connectivity: get stats: %w", err)
	}

	if c.conn.update(now, stats) {
		c.ping.reset()
		return true, nil
	}

	if err := c.maybeSendPing(context.Background(), now); err != nil {
		return false, err
	}
	return !c.ping.pingTimedOut(now, timeout) && c.conn.connected(), nil
}

// maybeSendPing sends a liveness probe if rx or all traffic has stalled,
// throttled to at most one ping per SecondsPerPing while a probe is
// outstanding.
func (c *Check) maybeSendPing(ctx context.Context, now time.Time) error {
	stalled := c.conn.rxTimedOut(now) || c.conn.trafficTimedOut(now)
	if !stalled {
		return nil
	}

	throttled := false
	if !c.ping.initialPingTimestamp.IsZero() {
		elapsed := now.Sub(c.ping.initialPingTimestamp)
		throttled = elapsed/time.Duration(c.ping.numPingsSent) < SecondsPerPing
	}
	if throttled {
		return nil
	}

	if err := c.ping.pinger.SendICMP(ctx); err != nil {
		return fmt.Errorf("connectivity: maybe send ping: %w", err)
	}
	if c.ping.initialPingTimestamp.IsZero() {
		c.ping.initialPingTimestamp = now
	}
	c.ping.numPingsSent++
	return nil
}

// Reset clears ping state and treats now as the last-rx time, for use after
// the host resumes from suspension.
func (c *Check) Reset(now time.Time) {
	c.ping.reset()
	c.conn.resetAfterSuspension(now)
}
