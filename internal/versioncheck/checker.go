package versioncheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/fsutil"
	"github.com/tunnelkeep/tunnelkeepd/internal/restclient"
)

// command is the private mailbox message type the Checker actor consumes.
type command interface {
	isCommand()
}

type getVersionInfoCmd struct {
	reply chan getVersionInfoResult
}

func (getVersionInfoCmd) isCommand() {}

type getVersionInfoResult struct {
	cache VersionCache
	err   error
}

// Checker is the Version/Update Checker actor (spec §4.J). All state is
// only ever touched from the actor goroutine started by Run.
type Checker struct {
	cfg     Config
	fetcher *fetcher
	logger  *slog.Logger
	mailbox chan command
	updates chan VersionCache

	cache     VersionCache
	cacheAt   time.Time
	haveCache bool

	lastErrorAt time.Time
	haveError   bool
}

// New creates a Checker. Call Run to start its actor goroutine.
func New(cfg Config, client *restclient.Client, logger *slog.Logger) (*Checker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Checker{
		cfg:     cfg,
		fetcher: &fetcher{client: client, cfg: cfg},
		logger:  logger.With("component", "versioncheck"),
		mailbox: make(chan command, cfg.MailboxSize),
		updates: make(chan VersionCache, 1),
	}, nil
}

// Updates returns the channel a fresh VersionCache is broadcast on every
// time the background loop or a foreground request completes a fetch.
func (c *Checker) Updates() <-chan VersionCache {
	return c.updates
}

// GetVersionInfo returns the cached VersionCache immediately if fresh, or
// triggers an immediate fetch (with a bounded number of no-delay retries)
// and waits for it if the cache is stale or missing.
func (c *Checker) GetVersionInfo(ctx context.Context) (VersionCache, error) {
	reply := make(chan getVersionInfoResult, 1)
	select {
	case c.mailbox <- getVersionInfoCmd{reply: reply}:
	case <-ctx.Done():
		return VersionCache{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.cache, res.err
	case <-ctx.Done():
		return VersionCache{}, ctx.Err()
	}
}

// Run drives the actor loop until ctx is cancelled. It loads the on-disk
// cache, then alternates between serving mailbox commands and waking up
// the background refresh loop when the cache goes stale.
func (c *Checker) Run(ctx context.Context) {
	c.logger.Info("version checker started")
	c.loadCache()

	timer := time.NewTimer(c.timeUntilStale())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("version checker stopped")
			return
		case cmd := <-c.mailbox:
			c.handle(ctx, cmd)
		case <-timer.C:
			c.backgroundRefresh(ctx)
			timer.Reset(c.timeUntilStale())
		}
	}
}

func (c *Checker) handle(ctx context.Context, cmd command) {
	switch cc := cmd.(type) {
	case getVersionInfoCmd:
		if !c.stale() {
			cc.reply <- getVersionInfoResult{cache: c.cache}
			return
		}
		cache, err := c.fetcher.fetchWithImmediateRetries(ctx, c.cfg.ImmediateRetries)
		if err != nil {
			c.logger.Error("foreground version check failed", "error", err)
			cc.reply <- getVersionInfoResult{err: err}
			return
		}
		c.store(cache)
		cc.reply <- getVersionInfoResult{cache: cache}
	}
}

// backgroundRefresh fetches once and retries after Config.ErrorRetry on
// failure by simply relying on the next timer tick: it does not loop
// internally, unlike the foreground path, so a stuck control plane never
// blocks mailbox commands.
func (c *Checker) backgroundRefresh(ctx context.Context) {
	cache, err := c.fetcher.fetch(ctx)
	if err != nil {
		c.logger.Error("background version check failed", "error", err)
		c.lastErrorAt = time.Now()
		c.haveError = true
		return
	}
	c.haveError = false
	c.store(cache)
}

func (c *Checker) store(cache VersionCache) {
	c.cache = cache
	c.cacheAt = time.Now()
	c.haveCache = true

	select {
	case c.updates <- cache:
	default:
	}

	if err := c.persist(cache); err != nil {
		c.logger.Error("failed to write version cache to disk", "error", err)
	}
}

func (c *Checker) persist(cache VersionCache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("versioncheck: marshal cache: %w", err)
	}
	return fsutil.WriteFileAtomic(c.cfg.CacheDir, versionInfoFilename, data, 0o644)
}

func (c *Checker) loadCache() {
	path := filepath.Join(c.cfg.CacheDir, versionInfoFilename)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("unable to load cached version info", "error", err)
		return
	}
	var cache VersionCache
	if err := json.Unmarshal(data, &cache); err != nil {
		c.logger.Warn("unable to parse cached version info", "error", err)
		return
	}
	c.cache = cache
	c.cacheAt = info.ModTime()
	c.haveCache = true
}

// stale reports whether the cache is missing or older than Config.Fresh.
func (c *Checker) stale() bool {
	if !c.haveCache {
		return true
	}
	return time.Since(c.cacheAt) >= c.cfg.Fresh
}

// timeUntilStale is how long the background loop should sleep before its
// next refresh attempt: Config.ErrorRetry after a failed attempt, or
// Config.Fresh after the last successful one.
func (c *Checker) timeUntilStale() time.Duration {
	if c.haveError {
		remaining := c.cfg.ErrorRetry - time.Since(c.lastErrorAt)
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	if !c.haveCache {
		return 0
	}
	remaining := c.cfg.Fresh - time.Since(c.cacheAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
