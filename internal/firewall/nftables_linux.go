//go:build linux

package firewall

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

const (
	chainOut = "out"
	chainIn  = "in"
)

// NftablesController implements Controller using the Linux nftables
// subsystem via the google/nftables netlink library. It owns a single IPv4
// filter table with "in" and "out" base chains, both defaulting to DROP, so
// that a failed Apply never leaves the host in an unfiltered state. Rules
// with an IPv6 source or destination are skipped, and IPv6 traffic is not
// filtered by this controller.
type NftablesController struct {
	table  string
	logger *slog.Logger
}

// NewNftablesController returns a new NftablesController for the named table.
func NewNftablesController(table string, logger *slog.Logger) *NftablesController {
	return &NftablesController{table: table, logger: logger.With("component", "firewall")}
}

// Apply replaces the contents of both chains in one netlink batch: flush
// each chain, add every compiled rule, then a single Flush() commits the
// whole transaction atomically. If the commit fails, the kernel leaves the
// previously-committed rule set intact.
func (c *NftablesController) Apply(rules []Rule) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: apply: %w", err)
	}

	table := c.ensureTable(conn)
	out := c.ensureChain(conn, table, chainOut, nftables.ChainHookOutput)
	in := c.ensureChain(conn, table, chainIn, nftables.ChainHookInput)

	conn.FlushChain(out)
	conn.FlushChain(in)

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("firewall: nftables: apply: %w", err)
		}
		if strings.Contains(rule.SrcIP, ":") || strings.Contains(rule.DstIP, ":") {
			continue // IPv6 rule: the IPv4 table never sees IPv6 packets
		}
		exprs, err := buildRuleExprs(rule)
		if err != nil {
			return fmt.Errorf("firewall: nftables: apply: build expressions: %w", err)
		}

		chain := out
		if rule.Direction == DirectionIn {
			chain = in
		}
		conn.AddRule(&nftables.Rule{Table: table, Chain: chain, Exprs: exprs})
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("firewall: nftables: apply: %w", err)
	}

	c.logger.Debug("firewall rules applied", "count", len(rules), "table", c.table)
	return nil
}

// Reset flushes both chains and deletes the table, returning the host to an
// unfiltered state. It is idempotent: resetting a non-existent table is a no-op.
func (c *NftablesController) Reset() error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: reset: %w", err)
	}

	tables, err := conn.ListTablesOfFamily(nftables.TableFamilyIPv4)
	if err != nil {
		return fmt.Errorf("firewall: nftables: reset: list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name == c.table {
			conn.DelTable(t)
			if err := conn.Flush(); err != nil {
				return fmt.Errorf("firewall: nftables: reset: %w", err)
			}
			c.logger.Debug("firewall table removed", "table", c.table)
			return nil
		}
	}

	c.logger.Debug("firewall table not found, idempotent success", "table", c.table)
	return nil
}

func (c *NftablesController) ensureTable(conn *nftables.Conn) *nftables.Table {
	return conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   c.table,
	})
}

func (c *NftablesController) ensureChain(conn *nftables.Conn, table *nftables.Table, name string, hook *nftables.ChainHook) *nftables.Chain {
	return conn.AddChain(&nftables.Chain{
		Name:     name,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  hook,
		Priority: nftables.ChainPriorityFilter,
		Policy:   chainPolicyDrop(),
	})
}

func chainPolicyDrop() *nftables.ChainPolicy {
	p := nftables.ChainPolicyDrop
	return &p
}

// buildRuleExprs converts a Rule into nftables match expressions and a verdict.
func buildRuleExprs(rule Rule) ([]expr.Any, error) {
	var exprs []expr.Any

	if rule.Interface != "" {
		key := expr.MetaKeyOIFNAME
		if rule.Direction == DirectionIn {
			key = expr.MetaKeyIIFNAME
		}
		exprs = append(exprs,
			&expr.Meta{Key: key, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifaceNameBytes(rule.Interface)},
		)
	}

	if rule.SrcIP != "" && rule.SrcIP != "0.0.0.0/0" {
		srcExprs, err := buildIPMatchExprs(rule.SrcIP, 12)
		if err != nil {
			return nil, fmt.Errorf("source IP %q: %w", rule.SrcIP, err)
		}
		exprs = append(exprs, srcExprs...)
	}

	if rule.DstIP != "" && rule.DstIP != "0.0.0.0/0" {
		dstExprs, err := buildIPMatchExprs(rule.DstIP, 16)
		if err != nil {
			return nil, fmt.Errorf("destination IP %q: %w", rule.DstIP, err)
		}
		exprs = append(exprs, dstExprs...)
	}

	if rule.Protocol != "" {
		proto, err := protocolNumber(rule.Protocol)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
		)
	}

	if rule.Port > 0 {
		exprs = append(exprs,
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: 2, Len: 2},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: portBytes(uint16(rule.Port))},
		)
	}

	if rule.State == StateEstablished {
		exprs = append(exprs,
			&expr.Ct{Key: expr.CtKeySTATE, Register: 1},
			&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: 4,
				Mask: []byte{0x02, 0x00, 0x00, 0x00}, Xor: []byte{0x00, 0x00, 0x00, 0x00}},
			&expr.Cmp{Op: expr.CmpOpNeq, Register: 1, Data: []byte{0x00, 0x00, 0x00, 0x00}},
		)
	}

	exprs = append(exprs, &expr.Counter{})

	switch rule.Action {
	case "allow":
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	case "deny":
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictDrop})
	default:
		return nil, fmt.Errorf("unsupported action %q", rule.Action)
	}

	return exprs, nil
}

// buildIPMatchExprs creates payload + cmp expressions to match an IPv4
// address. offset is 12 for source, 16 for destination in the IPv4 header.
func buildIPMatchExprs(addr string, offset uint32) ([]expr.Any, error) {
	ip, ipNet, err := net.ParseCIDR(addr)
	if err != nil {
		parsed := net.ParseIP(addr)
		if parsed == nil {
			return nil, fmt.Errorf("invalid IP address %q", addr)
		}
		ip = parsed.To4()
		if ip == nil {
			return nil, fmt.Errorf("non-IPv4 address %q", addr)
		}
		ipNet = &net.IPNet{IP: ip, Mask: net.CIDRMask(32, 32)}
	} else {
		ip = ip.To4()
	}

	ones, bits := ipNet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("non-IPv4 CIDR %q", addr)
	}

	payload := &expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: offset, Len: 4}

	if ones == 32 {
		return []expr.Any{payload, &expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ip}}, nil
	}

	return []expr.Any{
		payload,
		&expr.Bitwise{SourceRegister: 1, DestRegister: 1, Len: 4, Mask: []byte(ipNet.Mask), Xor: []byte{0, 0, 0, 0}},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ipNet.IP.To4()},
	}, nil
}

func protocolNumber(proto string) (byte, error) {
	switch proto {
	case "tcp":
		return unix.IPPROTO_TCP, nil
	case "udp":
		return unix.IPPROTO_UDP, nil
	case "icmp":
		return unix.IPPROTO_ICMP, nil
	default:
		return 0, fmt.Errorf("unsupported protocol %q", proto)
	}
}

func portBytes(port uint16) []byte {
	return []byte{byte(port >> 8), byte(port)}
}

// ifaceNameBytes returns the interface name followed by a single NUL byte
// for nftables expression matching. name must be shorter than IFNAMSIZ (16).
func ifaceNameBytes(name string) []byte {
	buf := make([]byte, 16)
	copy(buf, name)
	return buf[:len(name)+1]
}
