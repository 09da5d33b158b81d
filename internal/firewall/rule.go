package firewall

import "fmt"

// Direction selects which chain a Rule belongs to.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

// ConnState restricts a rule to packets in a given connection-tracking
// state. StateAny matches regardless of conntrack state.
type ConnState int

const (
	StateAny ConnState = iota
	StateEstablished
)

// Rule describes a single packet-filter rule in platform-neutral terms.
// A Controller implementation compiles a Rule into its native primitives.
type Rule struct {
	Direction Direction
	Interface string // network interface name, "" = any
	SrcIP     string // source IP or CIDR, "" or "0.0.0.0/0" = any
	DstIP     string // destination IP or CIDR, "" or "0.0.0.0/0" = any
	Port      int    // destination port, 0 = any
	Protocol  string // "tcp", "udp", "icmp", or "" = any
	State     ConnState
	Action    string // "allow" or "deny"
}

// Validate checks the rule for semantic correctness.
func (r *Rule) Validate() error {
	if r.Action != "allow" && r.Action != "deny" {
		return fmt.Errorf("firewall: rule: invalid action %q", r.Action)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("firewall: rule: invalid port %d", r.Port)
	}
	if r.Protocol != "" && r.Protocol != "tcp" && r.Protocol != "udp" && r.Protocol != "icmp" {
		return fmt.Errorf("firewall: rule: invalid protocol %q", r.Protocol)
	}
	if r.Port > 0 && r.Protocol == "" {
		return fmt.Errorf("firewall: rule: port %d requires a protocol", r.Port)
	}
	return nil
}

// Canonical returns a deterministic string encoding of the rule, used to
// compare compiled rule sets for idempotence in tests.
func (r Rule) Canonical() string {
	return fmt.Sprintf("%d|%s|%s|%s|%d|%s|%d|%s",
		r.Direction, r.Interface, r.SrcIP, r.DstIP, r.Port, r.Protocol, r.State, r.Action)
}

// Controller abstracts OS-level firewall operations for testability.
// Implementations must commit the whole rule set atomically: if Apply
// fails partway through, the previously-live rule set must remain intact.
type Controller interface {
	// Apply replaces the entire live rule set with rules in one atomic step.
	Apply(rules []Rule) error
	// Reset removes every rule this controller has ever applied, restoring
	// the host to an unfiltered state.
	Reset() error
}
