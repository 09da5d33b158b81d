//go:build linux

package connectivity

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ICMPPinger sends IPv4 ICMP echo requests to addr. The socket is not bound
// to an interface: unicast echo requests follow the routing table.
type ICMPPinger struct {
	addr net.IP
	conn *icmp.PacketConn
	seq  atomic.Uint32
	id   int
}

// NewICMPPinger opens a raw ICMP socket and prepares to ping addr. iface,
// if it exists, is only set as the socket's multicast interface. Requires
// CAP_NET_RAW (or running as root).
func NewICMPPinger(addr net.IP, iface string) (*ICMPPinger, error) {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("connectivity: icmp pinger: listen: %w", err)
	}

	if iface != "" {
		if link, err := net.InterfaceByName(iface); err == nil {
			_ = conn.IPv4PacketConn().SetMulticastInterface(link)
		}
	}

	return &ICMPPinger{addr: addr, conn: conn, id: os.Getpid() & 0xffff}, nil
}

// SendICMP sends a single echo request to the configured address.
func (p *ICMPPinger) SendICMP(ctx context.Context) error {
	seq := int(p.seq.Add(1))
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte("tunnelkeepd-connectivity-check"),
		},
	}

	wb, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("connectivity: icmp pinger: marshal: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = p.conn.SetWriteDeadline(deadline)
	}

	if _, err := p.conn.WriteTo(wb, &net.IPAddr{IP: p.addr}); err != nil {
		return fmt.Errorf("connectivity: icmp pinger: write: %w", err)
	}
	return nil
}

// Reset clears the sequence counter used for outgoing echo requests.
func (p *ICMPPinger) Reset() {
	p.seq.Store(0)
}

// Close releases the underlying raw socket.
func (p *ICMPPinger) Close() error {
	return p.conn.Close()
}
