package connectivity

import "context"

// Pinger sends ICMP echo requests over the tunnel interface to prod a
// stalled WireGuard handshake and to double as a liveness probe when no
// traffic has been observed recently.
type Pinger interface {
	// SendICMP sends a single echo request.
	SendICMP(ctx context.Context) error
	// Reset clears any sequence-number or rate-limiting state.
	Reset()
	// Close releases the underlying socket.
	Close() error
}
