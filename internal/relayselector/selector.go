// Package relayselector picks a relay and produces the TunnelParameters
// the Tunnel Engine Adapter needs to start a connection attempt.
package relayselector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/tunnelkeep/tunnelkeepd/internal/relaylist"
	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"
)

// ErrNoCandidates is returned when no relay in the cached list satisfies
// the given constraints.
var ErrNoCandidates = errors.New("relayselector: no relay matches constraints")

// Selector generates connection parameters for the next attempt. H calls
// Generate on every Connecting entry.
type Selector interface {
	Generate(ctx context.Context, retryAttempt int) (tunnelparams.TunnelParameters, error)
}

// KeyProvider returns the local WireGuard private key used for outgoing
// connections. Swappable for tests; production wiring uses
// wgtypes.GeneratePrivateKey.
type KeyProvider func() (wgtypes.Key, error)

// DefaultSelector consults a relaylist.Cache and RelayConstraints to build
// WireGuard TunnelParameters. It is deterministic for a given
// (constraints, attempt) pair via attempt % len(candidates) over a
// hostname-sorted candidate list.
type DefaultSelector struct {
	cache       *relaylist.Cache
	constraints RelayConstraints
	cfg         Config
	keyProvider KeyProvider
}

// New creates a DefaultSelector. A nil keyProvider defaults to
// wgtypes.GeneratePrivateKey.
func New(cache *relaylist.Cache, constraints RelayConstraints, cfg Config, keyProvider KeyProvider) (*DefaultSelector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keyProvider == nil {
		keyProvider = wgtypes.GeneratePrivateKey
	}
	return &DefaultSelector{
		cache:       cache,
		constraints: constraints,
		cfg:         cfg,
		keyProvider: keyProvider,
	}, nil
}

// SetConstraints replaces the active constraints for future Generate calls.
func (s *DefaultSelector) SetConstraints(c RelayConstraints) {
	s.constraints = c
}

// Generate builds WireGuard TunnelParameters for the given retry attempt.
func (s *DefaultSelector) Generate(ctx context.Context, retryAttempt int) (tunnelparams.TunnelParameters, error) {
	list, _ := s.cache.Get()
	candidates := s.candidates(list)
	if len(candidates) == 0 {
		return tunnelparams.TunnelParameters{}, ErrNoCandidates
	}

	if retryAttempt < 0 {
		retryAttempt = 0
	}
	chosen := candidates[retryAttempt%len(candidates)]

	var entry, exit *relaylist.Relay = &chosen, nil
	if s.constraints.Multihop && len(candidates) > 1 {
		exitIdx := (retryAttempt + 1) % len(candidates)
		if candidates[exitIdx].Hostname != chosen.Hostname {
			exitRelay := candidates[exitIdx]
			exit = &exitRelay
		}
	}

	privKey, err := s.keyProvider()
	if err != nil {
		return tunnelparams.TunnelParameters{}, fmt.Errorf("relayselector: generate private key: %w", err)
	}

	entryPeer, err := s.peerFor(entry)
	if err != nil {
		return tunnelparams.TunnelParameters{}, err
	}

	params := &tunnelparams.WireGuardParams{
		Tunnel: tunnelparams.TunnelConfig{
			PrivateKey: privKey[:],
			Addresses:  []string{s.cfg.TunnelIPv4},
			MTU:        s.cfg.TunnelMTU,
		},
		EntryPeer: entryPeer,
		Options: tunnelparams.WireGuardOptions{
			PersistentKeepaliveSeconds: int(s.cfg.KeepaliveInterval.Seconds()),
			ListenPort:                 s.cfg.ListenPort,
		},
		Generic: tunnelparams.GenericOptions{MTU: s.cfg.TunnelMTU},
	}

	if exit != nil {
		exitPeer, err := s.peerFor(exit)
		if err != nil {
			return tunnelparams.TunnelParameters{}, err
		}
		params.ExitPeer = &exitPeer
	}

	return tunnelparams.TunnelParameters{WireGuard: params}, nil
}

func (s *DefaultSelector) peerFor(relay *relaylist.Relay) (tunnelparams.Peer, error) {
	if relay.WireGuard == nil {
		return tunnelparams.Peer{}, fmt.Errorf("relayselector: relay %q has no wireguard config", relay.Hostname)
	}
	pubKeyBytes, err := base64.StdEncoding.DecodeString(relay.WireGuard.PublicKey)
	if err != nil {
		return tunnelparams.Peer{}, fmt.Errorf("relayselector: relay %q: decode public key: %w", relay.Hostname, err)
	}

	port := relay.WireGuard.Port
	if port == 0 {
		port = s.cfg.RelayPort
	}
	addr := relay.Ipv4AddrIn.String()
	if relay.Ipv4AddrIn == nil {
		addr = relay.Ipv6AddrIn.String()
	}

	return tunnelparams.Peer{
		PublicKey:  pubKeyBytes,
		Endpoint:   tunnelparams.Endpoint{Address: addr, Port: port, Protocol: "udp"},
		AllowedIPs: []string{"0.0.0.0/0", "::/0"},
	}, nil
}

// candidates filters and sorts relays by constraint, returning a
// hostname-sorted slice for deterministic round-robin indexing.
func (s *DefaultSelector) candidates(list relaylist.RelayList) []relaylist.Relay {
	out := make([]relaylist.Relay, 0, len(list.Relays))
	for _, r := range list.Relays {
		if !r.Active || r.WireGuard == nil {
			continue
		}
		if s.constraints.OwnershipOnly && !r.Owned {
			continue
		}
		if s.constraints.Location != nil && !s.constraints.Location.matches(r.Location.CountryCode, r.Location.CityCode) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out
}
