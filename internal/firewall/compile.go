package firewall

import "github.com/tunnelkeep/tunnelkeepd/internal/tunnelparams"

// Private network ranges carved out for LAN traffic when AllowLAN is set.
var privateNets = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

const (
	ipv4Multicast  = "224.0.0.0/4"
	ssdpEndpoint   = "239.255.255.250"
	ssdpPort       = 1900
	ipv6LinkLocal  = "fe80::/10"
	ipv6Multicast  = "ff00::/8"
	dhcpClientPort = 68
	dhcpServerPort = 67
	dhcpv6Client   = 546
	dhcpv6Server   = 547
	dnsPort        = 53
)

// Compile translates a FirewallPolicy into the ordered rule-set skeleton
// from the kill-switch design: loopback, DHCP carve-outs, the API
// AllowedEndpoint, LAN carve-outs, the tunnel-peer allow, the tunnel
// interface plus its AllowedTunnelTraffic restriction, DNS redirect with
// leak-block, and a final default-deny. Compiling the same Policy twice
// produces byte-identical output (via Rule.Canonical).
func Compile(p Policy) []Rule {
	var rules []Rule

	rules = append(rules, loopbackRules()...)
	rules = append(rules, dhcpRules()...)

	if ep := activeAllowedEndpoint(p); ep != nil {
		rules = append(rules, allowedEndpointRules(*ep)...)
	}

	if p.AllowLAN {
		rules = append(rules, lanRules()...)
	}

	switch p.Kind {
	case PolicyConnecting, PolicyConnected:
		rules = append(rules, peerRules(p.PeerEndpoint)...)
		if p.TunnelMetadata != nil {
			rules = append(rules, tunnelInterfaceRules(*p.TunnelMetadata, p.AllowedTunnelTraffic)...)
		}
		if p.Kind == PolicyConnected {
			rules = append(rules, dnsRules(p.DNSServers)...)
		}
	case PolicyBlocked:
		// No peer or tunnel-interface rules; only carve-outs above apply.
	}

	rules = append(rules, defaultDenyRules()...)
	return rules
}

// activeAllowedEndpoint returns the AllowedEndpoint that should be carved
// out for the current policy, or nil if none applies (Blocked with the
// endpoint disabled by a force-direct override with no fallback).
func activeAllowedEndpoint(p Policy) *AllowedEndpoint {
	switch p.Kind {
	case PolicyConnecting, PolicyConnected:
		return &p.AllowedEndpoint
	case PolicyBlocked:
		return p.BlockedAllowedEndpoint
	}
	return nil
}

func loopbackRules() []Rule {
	return []Rule{
		{Direction: DirectionOut, Interface: "lo", Action: "allow"},
		{Direction: DirectionIn, Interface: "lo", Action: "allow"},
	}
}

func dhcpRules() []Rule {
	return []Rule{
		{Direction: DirectionOut, Protocol: "udp", Port: dhcpServerPort, Action: "allow"},
		{Direction: DirectionIn, Protocol: "udp", Port: dhcpClientPort, Action: "allow"},
		{Direction: DirectionOut, Protocol: "udp", Port: dhcpv6Server, DstIP: ipv6LinkLocal, Action: "allow"},
		{Direction: DirectionIn, Protocol: "udp", Port: dhcpv6Client, SrcIP: ipv6LinkLocal, Action: "allow"},
	}
}

func allowedEndpointRules(ep AllowedEndpoint) []Rule {
	return []Rule{
		{
			Direction: DirectionOut,
			DstIP:     ep.Endpoint.Address,
			Port:      ep.Endpoint.Port,
			Protocol:  ep.Endpoint.Protocol,
			Action:    "allow",
		},
		{
			Direction: DirectionIn,
			SrcIP:     ep.Endpoint.Address,
			Port:      ep.Endpoint.Port,
			Protocol:  ep.Endpoint.Protocol,
			State:     StateEstablished,
			Action:    "allow",
		},
	}
}

func lanRules() []Rule {
	var rules []Rule
	for _, net := range privateNets {
		rules = append(rules,
			Rule{Direction: DirectionOut, SrcIP: net, DstIP: net, Action: "allow"},
			Rule{Direction: DirectionIn, SrcIP: net, DstIP: net, Action: "allow"},
			Rule{Direction: DirectionOut, SrcIP: net, DstIP: ipv4Multicast, Action: "allow"},
			Rule{Direction: DirectionOut, SrcIP: net, DstIP: ssdpEndpoint, Port: ssdpPort, Protocol: "udp", Action: "allow"},
		)
	}
	rules = append(rules,
		Rule{Direction: DirectionOut, SrcIP: ipv6LinkLocal, DstIP: ipv6LinkLocal, Action: "allow"},
		Rule{Direction: DirectionIn, SrcIP: ipv6LinkLocal, DstIP: ipv6LinkLocal, Action: "allow"},
		Rule{Direction: DirectionOut, SrcIP: ipv6LinkLocal, DstIP: ipv6Multicast, Action: "allow"},
	)
	return rules
}

func peerRules(ep tunnelparams.Endpoint) []Rule {
	return []Rule{
		{
			Direction: DirectionOut,
			DstIP:     ep.Address,
			Port:      ep.Port,
			Protocol:  ep.Protocol,
			Action:    "allow",
		},
		{
			Direction: DirectionIn,
			SrcIP:     ep.Address,
			Port:      ep.Port,
			Protocol:  ep.Protocol,
			State:     StateEstablished,
			Action:    "allow",
		},
	}
}

func tunnelInterfaceRules(meta TunnelMetadata, allowed AllowedTunnelTraffic) []Rule {
	var rules []Rule

	switch allowed.Kind {
	case TrafficNone:
		// No in-tunnel rule: traffic on this interface falls through to
		// the default-deny below.
	case TrafficAll:
		rules = append(rules,
			Rule{Direction: DirectionOut, Interface: meta.Interface, Action: "allow"},
			Rule{Direction: DirectionIn, Interface: meta.Interface, Action: "allow"},
		)
	case TrafficOne, TrafficTwo:
		eps := []tunnelparams.Endpoint{allowed.One}
		if allowed.Kind == TrafficTwo {
			eps = append(eps, allowed.Two)
		}
		for _, ep := range eps {
			rules = append(rules,
				endpointOnlyRule(meta.Interface, ep),
				Rule{Direction: DirectionIn, Interface: meta.Interface, SrcIP: ep.Address, Protocol: ep.Protocol, State: StateEstablished, Action: "allow"},
			)
		}
	}
	return rules
}

func endpointOnlyRule(iface string, ep tunnelparams.Endpoint) Rule {
	return Rule{
		Direction: DirectionOut,
		Interface: iface,
		DstIP:     ep.Address,
		Port:      ep.Port,
		Protocol:  ep.Protocol,
		Action:    "allow",
	}
}

func dnsRules(servers []string) []Rule {
	var rules []Rule
	for _, server := range servers {
		rules = append(rules,
			Rule{Direction: DirectionOut, DstIP: server, Port: dnsPort, Protocol: "udp", Action: "allow"},
			Rule{Direction: DirectionOut, DstIP: server, Port: dnsPort, Protocol: "tcp", Action: "allow"},
		)
	}
	// Leak-block: drop any remaining DNS traffic not destined for a
	// configured resolver, in both protocols.
	rules = append(rules,
		Rule{Direction: DirectionOut, Port: dnsPort, Protocol: "udp", Action: "deny"},
		Rule{Direction: DirectionOut, Port: dnsPort, Protocol: "tcp", Action: "deny"},
	)
	return rules
}

func defaultDenyRules() []Rule {
	return []Rule{
		{Direction: DirectionOut, Action: "deny"},
		{Direction: DirectionIn, Action: "deny"},
	}
}
