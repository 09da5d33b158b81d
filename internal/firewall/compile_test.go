package firewall

import (
	"testing"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

func connectedPolicy() Policy {
	return Policy{
		Kind:     PolicyConnected,
		AllowLAN: false,
		PeerEndpoint: tunnelparams.Endpoint{
			Address: "203.0.113.10", Port: 51820, Protocol: "udp",
		},
		AllowedTunnelTraffic: AllowedTunnelTraffic{Kind: TrafficAll},
		TunnelMetadata:       &TunnelMetadata{Interface: "wg-tk0"},
		AllowedEndpoint: AllowedEndpoint{
			Endpoint: tunnelparams.Endpoint{Address: "198.51.100.1", Port: 443, Protocol: "tcp"},
		},
		DNSServers: []string{"10.64.0.1"},
	}
}

func TestCompileIsIdempotent(t *testing.T) {
	p := connectedPolicy()
	a := Compile(p)
	b := Compile(p)

	if len(a) != len(b) {
		t.Fatalf("rule count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Canonical() != b[i].Canonical() {
			t.Fatalf("rule %d differs:\n%s\nvs\n%s", i, a[i].Canonical(), b[i].Canonical())
		}
	}
}

func TestCompileEndsWithDefaultDeny(t *testing.T) {
	rules := Compile(connectedPolicy())
	last := rules[len(rules)-2:]
	for _, r := range last {
		if r.Action != "deny" {
			t.Fatalf("expected trailing deny rules, got %+v", r)
		}
	}
}

func TestCompileBlockedHasNoPeerOrTunnelRules(t *testing.T) {
	p := Policy{
		Kind:     PolicyBlocked,
		AllowLAN: false,
		BlockedAllowedEndpoint: &AllowedEndpoint{
			Endpoint: tunnelparams.Endpoint{Address: "198.51.100.1", Port: 443, Protocol: "tcp"},
		},
	}
	rules := Compile(p)
	for _, r := range rules {
		if r.Interface != "" && r.Interface != "lo" {
			t.Fatalf("blocked policy must not allow a tunnel interface, found %+v", r)
		}
	}
}

func TestCompileConnectingHasNilTunnelMetadata(t *testing.T) {
	p := Policy{
		Kind:     PolicyConnecting,
		AllowLAN: true,
		PeerEndpoint: tunnelparams.Endpoint{
			Address: "203.0.113.10", Port: 51820, Protocol: "udp",
		},
		AllowedTunnelTraffic: AllowedTunnelTraffic{Kind: TrafficNone},
		AllowedEndpoint: AllowedEndpoint{
			Endpoint: tunnelparams.Endpoint{Address: "198.51.100.1", Port: 443, Protocol: "tcp"},
		},
	}
	rules := Compile(p)
	for _, r := range rules {
		if r.Interface != "" && r.Interface != "lo" {
			t.Fatalf("connecting policy with nil tunnel metadata must not reference a tunnel interface: %+v", r)
		}
	}
}

func TestCompileDNSLeakBlock(t *testing.T) {
	rules := Compile(connectedPolicy())
	var sawAllow, sawDeny bool
	for _, r := range rules {
		if r.Port == dnsPort && r.Action == "allow" && r.DstIP == "10.64.0.1" {
			sawAllow = true
		}
		if r.Port == dnsPort && r.Action == "deny" && r.DstIP == "" {
			sawDeny = true
		}
	}
	if !sawAllow || !sawDeny {
		t.Fatalf("expected DNS allow for configured resolver and a leak-block deny, allow=%v deny=%v", sawAllow, sawDeny)
	}
}
