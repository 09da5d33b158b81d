package connectivity

import (
	"testing"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
)

func TestConnStateNoTimeoutOnStart(t *testing.T) {
	now := time.Now()
	s := newConnState(now)

	if s.connected() {
		t.Error("connected() = true, want false")
	}
	if s.rxTimedOut(now) {
		t.Error("rxTimedOut() = true, want false")
	}
	if s.trafficTimedOut(now) {
		t.Error("trafficTimedOut() = true, want false")
	}
}

func TestConnStateTimesOutWithoutTraffic(t *testing.T) {
	start := time.Now().Add(-BytesRxTimeout - time.Second)
	s := newConnState(start)

	now := time.Now()
	if s.connected() {
		t.Error("connected() = true, want false")
	}
	if !s.rxTimedOut(now) {
		t.Error("rxTimedOut() = false, want true")
	}
	if !s.trafficTimedOut(now) {
		t.Error("trafficTimedOut() = false, want true")
	}
}

func TestConnStateConnectsOnRxIncrease(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)
	s := newConnState(start)

	connected := s.update(time.Now(), tunnelengine.PeerStats{RxBytes: 1})
	if !connected {
		t.Fatal("update() = false, want true on first rx bytes")
	}
	if !s.connected() {
		t.Error("connected() = false, want true")
	}
}

func TestConnStateTrafficTimesOutWhileConnected(t *testing.T) {
	start := time.Now().Add(-TrafficTimeout - time.Second)
	s := newConnState(start)

	connectTime := time.Now().Add(-TrafficTimeout)
	s.update(connectTime, tunnelengine.PeerStats{RxBytes: 1})

	now := time.Now()
	if !s.connected() {
		t.Fatal("expected connected state")
	}
	if s.rxTimedOut(now) {
		t.Error("rxTimedOut() = true, want false (tx never incremented after connect)")
	}
	if !s.trafficTimedOut(now) {
		t.Error("trafficTimedOut() = false, want true")
	}
}

func TestConnStateRxTimesOutAfterConnectingWithOutstandingTx(t *testing.T) {
	start := time.Now().Add(-BytesRxTimeout - time.Second)
	s := newConnState(start)

	s.update(start, tunnelengine.PeerStats{RxBytes: 1, TxBytes: 1})
	updateTime := time.Now().Add(-BytesRxTimeout)
	s.update(updateTime, tunnelengine.PeerStats{RxBytes: 1, TxBytes: 2})

	now := time.Now()
	if !s.connected() {
		t.Fatal("expected connected state")
	}
	if !s.rxTimedOut(now) {
		t.Error("rxTimedOut() = false, want true (tx advanced without matching rx)")
	}
	if s.trafficTimedOut(now) {
		t.Error("trafficTimedOut() = true, want false")
	}
}

func TestConnStateResetAfterSuspension(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	s := newConnState(start)
	s.update(start, tunnelengine.PeerStats{RxBytes: 1})

	now := time.Now()
	s.resetAfterSuspension(now)

	if s.rxTimedOut(now) {
		t.Error("rxTimedOut() = true after resetAfterSuspension, want false")
	}
}
