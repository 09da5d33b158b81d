package connectivity

import (
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/tunnelengine"
)

// connKind tags which variant of connState is active.
type connKind int

const (
	connConnecting connKind = iota
	connConnected
)

// connState tracks whether the tunnel has ever observed incoming traffic
// (connConnecting -> connConnected) and, once connected, whether it is
// still receiving it. Mirrors the two-state model of the reference
// implementation's ConnState enum, translated to a Kind-tagged struct in
// the style this codebase uses for other variant-like data.
type connState struct {
	kind connKind

	start time.Time
	stats tunnelengine.PeerStats

	// txTimestamp is the last time outgoing bytes were observed to
	// increase. Zero if none has been observed yet (connConnecting only).
	txTimestamp time.Time
	// rxTimestamp is the last time incoming bytes were observed to
	// increase. Only meaningful in connConnected.
	rxTimestamp time.Time
}

func newConnState(start time.Time) connState {
	return connState{kind: connConnecting, start: start}
}

// update folds in a fresh stats reading and reports whether rx bytes were
// observed to increase on this call.
func (s *connState) update(now time.Time, newStats tunnelengine.PeerStats) bool {
	switch s.kind {
	case connConnecting:
		if newStats.RxBytes > 0 {
			tx := s.txTimestamp
			if tx.IsZero() {
				tx = s.start
			}
			*s = connState{
				kind:        connConnected,
				stats:       newStats,
				rxTimestamp: now,
				txTimestamp: tx,
			}
			return true
		}
		if newStats.TxBytes > s.stats.TxBytes {
			s.txTimestamp = now
		}
		s.stats = newStats
		return false

	default: // connConnected
		rxIncremented := newStats.RxBytes > s.stats.RxBytes
		if rxIncremented {
			s.rxTimestamp = now
		}
		if newStats.TxBytes > s.stats.TxBytes {
			s.txTimestamp = now
		}
		s.stats = newStats
		return rxIncremented
	}
}

// resetAfterSuspension treats now as the last-rx time, used after the host
// wakes from sleep so stale timestamps don't immediately read as timed out.
func (s *connState) resetAfterSuspension(now time.Time) {
	if s.kind == connConnected {
		s.rxTimestamp = now
	}
}

// rxTimedOut reports whether we've gone too long without an rx increase
// relative to the last tx increase.
func (s *connState) rxTimedOut(now time.Time) bool {
	switch s.kind {
	case connConnecting:
		return now.Sub(s.start) >= BytesRxTimeout
	default:
		return !s.txTimestamp.Before(s.rxTimestamp) && now.Sub(s.rxTimestamp) >= BytesRxTimeout
	}
}

// trafficTimedOut reports whether rx or tx has gone TrafficTimeout
// without an increase.
func (s *connState) trafficTimedOut(now time.Time) bool {
	switch s.kind {
	case connConnecting:
		return s.rxTimedOut(now)
	default:
		return now.Sub(s.rxTimestamp) >= TrafficTimeout || now.Sub(s.txTimestamp) >= TrafficTimeout
	}
}

func (s *connState) connected() bool {
	return s.kind == connConnected
}
