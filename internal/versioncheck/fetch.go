package versioncheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tunnelkeep/tunnelkeepd/internal/restclient"
)

// versionPath is the control-plane version-check endpoint, per spec §4.D:
// "returns {supported: bool, latest: {stable, beta?}}".
const versionPath = "/app/version"

var errCacheDirRequired = errors.New("versioncheck: CacheDir is required")

// fetcher performs the actual version-check HTTP request. Split out from
// Checker so tests can exercise the cache/retry logic with a stub.
type fetcher struct {
	client *restclient.Client
	cfg    Config
}

func (f *fetcher) fetch(ctx context.Context) (VersionCache, error) {
	var resp versionResponse
	if err := f.client.GetJSON(ctx, fetchPath(f.cfg), &resp); err != nil {
		return VersionCache{}, fmt.Errorf("versioncheck: fetch: %w", err)
	}
	return resp.toCache(time.Now()), nil
}

func fetchPath(cfg Config) string {
	return fmt.Sprintf("%s?version=%s&platform=%s&platform_version=%s",
		versionPath, cfg.CurrentVersion, cfg.Platform, cfg.PlatformVersion)
}

// fetchWithImmediateRetries makes up to attempts fetches in total with no
// delay between them, matching the original's IMMEDIATE_RETRY_STRATEGY for foreground
// requests against a stale cache. It gives up early only on context
// cancellation.
func (f *fetcher) fetchWithImmediateRetries(ctx context.Context, attempts int) (VersionCache, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		cache, err := f.fetch(ctx)
		if err == nil {
			return cache, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return VersionCache{}, lastErr
}
