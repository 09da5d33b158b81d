//go:build linux

package connectivity

import (
	"context"
	"net"
	"testing"
)

var _ Pinger = (*ICMPPinger)(nil)

func TestICMPPingerSendRequiresPrivileges(t *testing.T) {
	pinger, err := NewICMPPinger(net.ParseIP("127.0.0.1"), "")
	if err != nil {
		t.Skipf("skipping: requires elevated privileges to open raw ICMP socket: %v", err)
	}
	defer pinger.Close()

	if err := pinger.SendICMP(context.Background()); err != nil {
		t.Fatalf("SendICMP() error = %v", err)
	}
}

func TestICMPPingerResetClearsSequence(t *testing.T) {
	pinger, err := NewICMPPinger(net.ParseIP("127.0.0.1"), "")
	if err != nil {
		t.Skipf("skipping: requires elevated privileges to open raw ICMP socket: %v", err)
	}
	defer pinger.Close()

	_ = pinger.SendICMP(context.Background())
	pinger.Reset()
	if pinger.seq.Load() != 0 {
		t.Errorf("seq after Reset() = %d, want 0", pinger.seq.Load())
	}
}
