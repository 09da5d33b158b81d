package connectivity

import "time"

// Timing constants for the connectivity check, reproduced from the
// reference implementation's establish/liveness schedule.
const (
	// PollInterval is how often tunnel traffic stats are polled.
	PollInterval = 100 * time.Millisecond

	// BytesRxTimeout is how long we wait for a response to outgoing
	// traffic before considering rx "timed out".
	BytesRxTimeout = 5 * time.Second

	// TrafficTimeout is how long either direction (tx or rx) may go
	// without an increase before the link is considered stalled.
	TrafficTimeout = 120 * time.Second

	// PingTimeout is how long a ping can go unanswered before the
	// connection is declared broken.
	PingTimeout = 15 * time.Second

	// SecondsPerPing throttles pinging to at most once per this duration
	// while a liveness probe is outstanding.
	SecondsPerPing = 3 * time.Second

	// EstablishTimeout is the initial timeout used while first
	// establishing connectivity for a connection attempt.
	EstablishTimeout = 4 * time.Second

	// EstablishTimeoutMultiplier doubles the establish timeout for each
	// retry attempt, up to MaxEstablishTimeout.
	EstablishTimeoutMultiplier = 2

	// MaxEstablishTimeout caps the establish-phase timeout regardless of
	// retry attempt.
	MaxEstablishTimeout = 32 * time.Second
)
