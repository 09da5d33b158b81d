package connectivity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statsFunc func() (tunnelengine.PeerStats, error)

type mockEngine struct {
	mu    sync.Mutex
	stats statsFunc
}

func (e *mockEngine) Start(ctx context.Context, params tunnelparams.TunnelParameters, cb tunnelengine.EventFunc, closeRx <-chan struct{}) (tunnelengine.Handle, error) {
	return nil, nil
}
func (e *mockEngine) Wait(h tunnelengine.Handle) error { return nil }
func (e *mockEngine) Kill(h tunnelengine.Handle)        {}
func (e *mockEngine) GetStats(h tunnelengine.Handle) (tunnelengine.PeerStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats()
}
func (e *mockEngine) SetConfig(h tunnelengine.Handle, params tunnelparams.TunnelParameters) error {
	return nil
}

func constantStats(s tunnelengine.PeerStats) statsFunc {
	return func() (tunnelengine.PeerStats, error) { return s, nil }
}

type mockPinger struct {
	mu   sync.Mutex
	sent int
}

func (p *mockPinger) SendICMP(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent++
	return nil
}
func (p *mockPinger) Reset()       {}
func (p *mockPinger) Close() error { return nil }

func (p *mockPinger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func TestCheckConnectivityObservesRxIncrease(t *testing.T) {
	pinger := &mockPinger{}
	token, recv := NewCancelToken()
	defer token.Close()
	check := NewCheck(pinger, 0, recv, testLogger())

	eng := &mockEngine{stats: constantStats(tunnelengine.PeerStats{RxBytes: 1, TxBytes: 1})}

	ok, err := check.CheckConnectivity(time.Now(), nil, eng)
	if err != nil {
		t.Fatalf("CheckConnectivity() error = %v", err)
	}
	if !ok {
		t.Fatal("CheckConnectivity() = false, want true on first rx bytes")
	}
}

func TestCheckConnectivityNotYetConnected(t *testing.T) {
	pinger := &mockPinger{}
	token, recv := NewCancelToken()
	defer token.Close()
	check := NewCheck(pinger, 0, recv, testLogger())

	eng := &mockEngine{stats: constantStats(tunnelengine.PeerStats{})}

	ok, err := check.CheckConnectivity(time.Now(), nil, eng)
	if err != nil {
		t.Fatalf("CheckConnectivity() error = %v", err)
	}
	if ok {
		t.Fatal("CheckConnectivity() = true, want false with no traffic observed")
	}
}

func TestCheckPingsAfterStallOnceConnected(t *testing.T) {
	pinger := &mockPinger{}
	token, recv := NewCancelToken()
	defer token.Close()
	check := NewCheck(pinger, 0, recv, testLogger())

	start := time.Now().Add(-time.Hour)
	check.conn = newConnState(start)
	check.conn.update(start, tunnelengine.PeerStats{RxBytes: 1})
	// Force both rx and traffic to look stalled.
	check.conn.rxTimestamp = time.Now().Add(-BytesRxTimeout - time.Second)
	check.conn.txTimestamp = time.Now().Add(-BytesRxTimeout - time.Second)

	eng := &mockEngine{stats: constantStats(tunnelengine.PeerStats{RxBytes: 1})}

	ok, err := check.CheckConnectivity(time.Now(), nil, eng)
	if err != nil {
		t.Fatalf("CheckConnectivity() error = %v", err)
	}
	if !ok {
		t.Error("CheckConnectivity() = false, want true while the first unanswered ping is still within PingTimeout")
	}
	if pinger.count() == 0 {
		t.Error("expected a liveness ping to be sent when traffic stalls")
	}
}

func TestCheckShouldShutDown(t *testing.T) {
	pinger := &mockPinger{}
	token, recv := NewCancelToken()
	check := NewCheck(pinger, 0, recv, testLogger())

	if check.ShouldShutDown() {
		t.Fatal("ShouldShutDown() = true before Close()")
	}
	token.Close()
	if !check.ShouldShutDown() {
		t.Fatal("ShouldShutDown() = false after Close()")
	}
	// Closing twice must not panic.
	token.Close()
}

func TestEstablishTimeoutForDoublesAndCaps(t *testing.T) {
	if got := establishTimeoutFor(0); got != EstablishTimeout {
		t.Errorf("establishTimeoutFor(0) = %v, want %v", got, EstablishTimeout)
	}
	if got := establishTimeoutFor(1); got != 2*EstablishTimeout {
		t.Errorf("establishTimeoutFor(1) = %v, want %v", got, 2*EstablishTimeout)
	}
	if got := establishTimeoutFor(10); got != MaxEstablishTimeout {
		t.Errorf("establishTimeoutFor(10) = %v, want %v (capped)", got, MaxEstablishTimeout)
	}
}

func TestEstablishConnectivityCancels(t *testing.T) {
	pinger := &mockPinger{}
	token, recv := NewCancelToken()
	check := NewCheck(pinger, 0, recv, testLogger())

	eng := &mockEngine{stats: constantStats(tunnelengine.PeerStats{})}

	done := make(chan bool, 1)
	go func() {
		ok, _ := check.EstablishConnectivity(context.Background(), nil, eng)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	token.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("EstablishConnectivity() = true, want false after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EstablishConnectivity did not return after cancellation")
	}
}
