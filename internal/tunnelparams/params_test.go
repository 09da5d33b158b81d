package tunnelparams

import "testing"

func TestWireGuardParamsMultihopEndpoints(t *testing.T) {
	entry := Peer{Endpoint: Endpoint{Address: "198.51.100.1", Port: 51820, Protocol: "udp"}}
	exit := Peer{Endpoint: Endpoint{Address: "198.51.100.2", Port: 51820, Protocol: "udp"}}

	wg := WireGuardParams{EntryPeer: entry, ExitPeer: &exit}

	if !wg.IsMultihop() {
		t.Fatal("IsMultihop() = false, want true")
	}
	if got := wg.ExternalEndpoint(); got != exit.Endpoint {
		t.Errorf("ExternalEndpoint() = %v, want exit peer endpoint %v", got, exit.Endpoint)
	}
	if got := wg.WireEndpoint(); got != entry.Endpoint {
		t.Errorf("WireEndpoint() = %v, want entry peer endpoint %v", got, entry.Endpoint)
	}
}

func TestWireGuardParamsSinglehopEndpoints(t *testing.T) {
	entry := Peer{Endpoint: Endpoint{Address: "198.51.100.1", Port: 51820, Protocol: "udp"}}
	wg := WireGuardParams{EntryPeer: entry}

	if wg.IsMultihop() {
		t.Fatal("IsMultihop() = true, want false")
	}
	if got := wg.ExternalEndpoint(); got != entry.Endpoint {
		t.Errorf("ExternalEndpoint() = %v, want entry peer endpoint %v", got, entry.Endpoint)
	}
}

func TestTunnelParametersCloneIsIndependent(t *testing.T) {
	orig := TunnelParameters{
		WireGuard: &WireGuardParams{
			Tunnel: TunnelConfig{Addresses: []string{"10.64.0.2/32"}},
			EntryPeer: Peer{
				AllowedIPs:   []string{"0.0.0.0/0"},
				PresharedKey: []byte{1, 2, 3},
			},
			ExitPeer: &Peer{AllowedIPs: []string{"10.64.0.0/24"}},
		},
	}

	clone := orig.Clone()

	clone.WireGuard.Tunnel.Addresses[0] = "mutated"
	clone.WireGuard.EntryPeer.AllowedIPs[0] = "mutated"
	clone.WireGuard.EntryPeer.PresharedKey[0] = 0xFF
	clone.WireGuard.ExitPeer.AllowedIPs[0] = "mutated"

	if orig.WireGuard.Tunnel.Addresses[0] == "mutated" {
		t.Error("Clone() did not deep-copy Tunnel.Addresses")
	}
	if orig.WireGuard.EntryPeer.AllowedIPs[0] == "mutated" {
		t.Error("Clone() did not deep-copy EntryPeer.AllowedIPs")
	}
	if orig.WireGuard.EntryPeer.PresharedKey[0] == 0xFF {
		t.Error("Clone() did not deep-copy EntryPeer.PresharedKey")
	}
	if orig.WireGuard.ExitPeer.AllowedIPs[0] == "mutated" {
		t.Error("Clone() did not deep-copy ExitPeer.AllowedIPs")
	}
}

func TestTunnelParametersIsWireGuard(t *testing.T) {
	wg := TunnelParameters{WireGuard: &WireGuardParams{}}
	if !wg.IsWireGuard() {
		t.Error("IsWireGuard() = false, want true")
	}

	ov := TunnelParameters{OpenVPN: &OpenVPNParams{}}
	if ov.IsWireGuard() {
		t.Error("IsWireGuard() = true, want false")
	}
}

func TestEndpointString(t *testing.T) {
	e := Endpoint{Address: "198.51.100.1", Port: 51820, Protocol: "udp"}
	want := "198.51.100.1:51820/udp"
	if got := e.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
