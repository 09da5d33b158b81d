// Package daemonerr classifies errors surfaced by the tunnel state machine
// and its dependencies into the taxonomy spec.md §7 describes, so that H
// and the control-plane RPC surface can decide the next state and report a
// stable cause to frontends without each package inventing its own codes.
package daemonerr

import (
	"errors"
	"fmt"
)

// Category is the coarse bucket a Cause belongs to.
type Category int

const (
	// CategoryTransient covers retried-with-backoff network failures.
	CategoryTransient Category = iota
	// CategoryConfiguration covers bad tunnel parameters or account state.
	CategoryConfiguration
	// CategoryFirewall covers a failed firewall policy commit.
	CategoryFirewall
	// CategoryCapability covers offline/permission/adapter failures.
	CategoryCapability
	// CategoryAuth covers authentication failures against the account.
	CategoryAuth
	// CategoryFatal covers internal invariant violations the daemon cannot
	// recover from at runtime.
	CategoryFatal
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryConfiguration:
		return "configuration"
	case CategoryFirewall:
		return "firewall"
	case CategoryCapability:
		return "capability"
	case CategoryAuth:
		return "auth"
	case CategoryFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Reason is a specific, stable cause code within a Category.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonTunnelParameterError
	ReasonInvalidAccount
	ReasonExpiredAccount
	ReasonDeviceNotFound
	ReasonSetFirewallPolicyError
	ReasonIsOffline
	ReasonIPv6Unavailable
	ReasonMissingTapAdapter
	ReasonNeedFullDiskPermissions
	ReasonSplitTunnelError
	ReasonAuthFailedTooManyConnections
	ReasonAuthFailedUnknown
)

func (r Reason) String() string {
	switch r {
	case ReasonTunnelParameterError:
		return "TunnelParameterError"
	case ReasonInvalidAccount:
		return "InvalidAccount"
	case ReasonExpiredAccount:
		return "ExpiredAccount"
	case ReasonDeviceNotFound:
		return "DeviceNotFound"
	case ReasonSetFirewallPolicyError:
		return "SetFirewallPolicyError"
	case ReasonIsOffline:
		return "IsOffline"
	case ReasonIPv6Unavailable:
		return "Ipv6Unavailable"
	case ReasonMissingTapAdapter:
		return "MissingTapAdapter"
	case ReasonNeedFullDiskPermissions:
		return "NeedFullDiskPermissions"
	case ReasonSplitTunnelError:
		return "SplitTunnelError"
	case ReasonAuthFailedTooManyConnections:
		return "TooManyConnections"
	case ReasonAuthFailedUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// Cause is the typed error H records on an Error(cause) transition. It
// wraps an optional underlying error for logging while exposing a stable
// Category/Reason pair for the control-plane RPC surface and for H's own
// retry/fatal classification.
type Cause struct {
	Category Category
	Reason   Reason
	// BlockFailure is set when the Blocked firewall policy applied on entry
	// to Error itself failed to apply (spec.md §7.3's "block_failure").
	BlockFailure bool
	Err          error
}

func (c *Cause) Error() string {
	if c.Err != nil {
		return fmt.Sprintf("daemonerr: %s/%s: %v", c.Category, c.Reason, c.Err)
	}
	return fmt.Sprintf("daemonerr: %s/%s", c.Category, c.Reason)
}

func (c *Cause) Unwrap() error { return c.Err }

// Is matches on Category and Reason, ignoring the wrapped error and
// BlockFailure, so callers can write errors.Is(err, daemonerr.IsOffline).
func (c *Cause) Is(target error) bool {
	t, ok := target.(*Cause)
	if !ok {
		return false
	}
	return c.Category == t.Category && c.Reason == t.Reason
}

// Sentinel causes for errors.Is matching. BlockFailure and Err are never
// compared by Is, so these can be used as targets regardless of the
// concrete Cause's wrapped error.
var (
	TunnelParameterError   = &Cause{Category: CategoryConfiguration, Reason: ReasonTunnelParameterError}
	InvalidAccount         = &Cause{Category: CategoryConfiguration, Reason: ReasonInvalidAccount}
	ExpiredAccount         = &Cause{Category: CategoryConfiguration, Reason: ReasonExpiredAccount}
	DeviceNotFound         = &Cause{Category: CategoryConfiguration, Reason: ReasonDeviceNotFound}
	SetFirewallPolicyError = &Cause{Category: CategoryFirewall, Reason: ReasonSetFirewallPolicyError}
	IsOffline              = &Cause{Category: CategoryCapability, Reason: ReasonIsOffline}
	IPv6Unavailable        = &Cause{Category: CategoryCapability, Reason: ReasonIPv6Unavailable}
	MissingTapAdapter      = &Cause{Category: CategoryCapability, Reason: ReasonMissingTapAdapter}
	NeedFullDiskPermissions = &Cause{Category: CategoryCapability, Reason: ReasonNeedFullDiskPermissions}
	SplitTunnelError       = &Cause{Category: CategoryCapability, Reason: ReasonSplitTunnelError}
	AuthFailedTooMany      = &Cause{Category: CategoryAuth, Reason: ReasonAuthFailedTooManyConnections}
	AuthFailedUnknown      = &Cause{Category: CategoryAuth, Reason: ReasonAuthFailedUnknown}
)

// Wrap builds a Cause from a sentinel, attaching err for logging while
// keeping the sentinel's Category/Reason for errors.Is matching.
func Wrap(sentinel *Cause, err error) *Cause {
	return &Cause{Category: sentinel.Category, Reason: sentinel.Reason, Err: err}
}

// WithBlockFailure returns a copy of c with BlockFailure set, used when the
// Blocked policy applied on entry to Error itself fails to commit.
func (c *Cause) WithBlockFailure() *Cause {
	return &Cause{Category: c.Category, Reason: c.Reason, BlockFailure: true, Err: c.Err}
}

// IsFatal reports whether this cause must reset H's retry-attempt counter
// rather than carrying it over into the next Connecting cycle, per
// spec.md §4.H: "auth, configuration error, unsupported OS state".
func (c *Cause) IsFatal() bool {
	switch c.Category {
	case CategoryAuth, CategoryConfiguration:
		return true
	case CategoryCapability:
		return c.Reason == ReasonMissingTapAdapter || c.Reason == ReasonNeedFullDiskPermissions
	default:
		return false
	}
}

// AuthFailed maps a daemon-RPC auth-failure sub-reason string to a Cause:
// "InvalidAccount" and "ExpiredAccount" map to their configuration-category
// sentinels, "TooManyConnections" to AuthFailedTooMany, and any other
// string to AuthFailedUnknown.
func AuthFailed(subReason string) *Cause {
	switch subReason {
	case "InvalidAccount":
		return InvalidAccount
	case "ExpiredAccount":
		return ExpiredAccount
	case "TooManyConnections":
		return AuthFailedTooMany
	default:
		return AuthFailedUnknown
	}
}

// As is a thin wrapper around errors.As for extracting a *Cause from a
// wrapped error chain, kept here so callers don't need a direct "errors"
// import just to unwrap daemon causes.
func As(err error) (*Cause, bool) {
	var c *Cause
	ok := errors.As(err, &c)
	return c, ok
}
