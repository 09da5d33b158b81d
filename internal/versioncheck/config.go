package versioncheck

import "time"

// Config configures the Checker actor.
type Config struct {
	// CacheDir is the directory version-info.json is read from and
	// written to, via internal/fsutil.WriteFileAtomic.
	CacheDir string

	// Fresh is how long a successful check is trusted before the
	// background loop re-fetches. Defaults to 24h.
	Fresh time.Duration

	// ErrorRetry is how long the background loop waits before retrying
	// after a failed fetch. Defaults to 6h.
	ErrorRetry time.Duration

	// ImmediateRetries is how many no-delay fetch attempts, in total, a
	// foreground request makes when the cache is stale. Defaults to 3.
	ImmediateRetries int

	// MailboxSize bounds the actor's command channel.
	MailboxSize int

	// Platform and PlatformVersion are sent to the control plane's
	// version-check endpoint so it can tailor the response.
	Platform        string
	PlatformVersion string

	// CurrentVersion is this build's own version string.
	CurrentVersion string
}

const (
	// DefaultFresh mirrors the original's UPDATE_INTERVAL.
	DefaultFresh = 24 * time.Hour
	// DefaultErrorRetry mirrors the original's UPDATE_INTERVAL_ERROR.
	DefaultErrorRetry = 6 * time.Hour
	// DefaultImmediateRetries mirrors the original's IMMEDIATE_RETRY_STRATEGY.
	DefaultImmediateRetries = 3
	// DefaultMailboxSize is used when Config.MailboxSize is unset.
	DefaultMailboxSize = 16

	// versionInfoFilename is the on-disk cache file name.
	versionInfoFilename = "version-info.json"
)

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Fresh <= 0 {
		c.Fresh = DefaultFresh
	}
	if c.ErrorRetry <= 0 {
		c.ErrorRetry = DefaultErrorRetry
	}
	if c.ImmediateRetries <= 0 {
		c.ImmediateRetries = DefaultImmediateRetries
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = DefaultMailboxSize
	}
}

// Validate reports whether the config is usable as-is.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return errCacheDirRequired
	}
	return nil
}
