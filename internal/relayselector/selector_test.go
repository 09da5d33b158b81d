package relayselector

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/tunnelkeep/tunnelkeepd/internal/relaylist"
)

func testKeyProvider() KeyProvider {
	return func() (wgtypes.Key, error) { return wgtypes.GenerateKey() }
}

func fakePublicKey(t *testing.T) string {
	t.Helper()
	key, err := wgtypes.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key[:])
}

func testCacheWithRelays(t *testing.T, hostnames ...string) *relaylist.Cache {
	t.Helper()
	cache := relaylist.NewCache()
	var relays []relaylist.Relay
	for _, h := range hostnames {
		relays = append(relays, relaylist.Relay{
			Hostname:   h,
			Active:     true,
			Ipv4AddrIn: net.ParseIP("10.0.0.1"),
			Location:   relaylist.Location{CountryCode: "se", CityCode: "mma"},
			WireGuard:  &relaylist.WireGuardRelay{PublicKey: fakePublicKey(t), Port: 51820},
		})
	}
	cache.Update(relaylist.RelayList{Relays: relays}, "digest", time.Now())
	return cache
}

func TestSelectorGenerateDeterministicRoundRobin(t *testing.T) {
	cache := testCacheWithRelays(t, "b-relay", "a-relay", "c-relay")
	sel, err := New(cache, RelayConstraints{}, Config{TunnelIPv4: "10.64.0.2/32"}, testKeyProvider())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	params0, err := sel.Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Generate(0) error = %v", err)
	}
	params3, err := sel.Generate(context.Background(), 3)
	if err != nil {
		t.Fatalf("Generate(3) error = %v", err)
	}
	// 3 candidates, sorted a-relay/b-relay/c-relay: attempt 0 and attempt 3
	// (3%3==0) must choose the same entry endpoint.
	if params0.WireGuard.EntryPeer.Endpoint != params3.WireGuard.EntryPeer.Endpoint {
		t.Error("Generate(0) and Generate(3) chose different relays, want same (deterministic wraparound)")
	}
}

func TestSelectorGenerateNoCandidates(t *testing.T) {
	cache := relaylist.NewCache()
	sel, err := New(cache, RelayConstraints{}, Config{TunnelIPv4: "10.64.0.2/32"}, testKeyProvider())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := sel.Generate(context.Background(), 0); err != ErrNoCandidates {
		t.Errorf("Generate() error = %v, want ErrNoCandidates", err)
	}
}

func TestSelectorGenerateFiltersByLocation(t *testing.T) {
	cache := testCacheWithRelays(t, "se-relay")
	sel, err := New(cache, RelayConstraints{Location: &LocationFilter{CountryCode: "us"}}, Config{TunnelIPv4: "10.64.0.2/32"}, testKeyProvider())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := sel.Generate(context.Background(), 0); err != ErrNoCandidates {
		t.Errorf("Generate() error = %v, want ErrNoCandidates for non-matching country", err)
	}
}

func TestSelectorGenerateSinglehopHasNoExitPeer(t *testing.T) {
	cache := testCacheWithRelays(t, "a-relay")
	sel, err := New(cache, RelayConstraints{}, Config{TunnelIPv4: "10.64.0.2/32"}, testKeyProvider())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	params, err := sel.Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if params.WireGuard.ExitPeer != nil {
		t.Error("Generate() set ExitPeer with Multihop=false")
	}
}

func TestSelectorGenerateMultihopSetsExitPeer(t *testing.T) {
	cache := testCacheWithRelays(t, "a-relay", "b-relay")
	sel, err := New(cache, RelayConstraints{Multihop: true}, Config{TunnelIPv4: "10.64.0.2/32"}, testKeyProvider())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	params, err := sel.Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if params.WireGuard.ExitPeer == nil {
		t.Error("Generate() left ExitPeer nil with Multihop=true and 2 candidates")
	}
}
