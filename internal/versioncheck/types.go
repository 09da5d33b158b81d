// Package versioncheck is the background version/update checker (spec §4.J):
// a single actor that keeps a cached VersionCache fresh, fetching from the
// control-plane API on a schedule and serving foreground requests from
// cache when possible. Grounded on the teacher's single-actor mailbox
// pattern (internal/accessmethod.Selector) for the actor shape and on
// internal/relaylist for the REST-fetch-and-cache shape.
package versioncheck

import "time"

// Version describes a single published release.
type Version struct {
	Version   string   `json:"version"`
	Changelog string   `json:"changelog"`
	URLs      []string `json:"urls"`
	SHA256    [32]byte `json:"sha256"`
	Size      uint64   `json:"size"`
}

// VersionCache is the persisted and broadcast result of a version check.
type VersionCache struct {
	CurrentVersionSupported bool      `json:"current_version_supported"`
	Stable                  Version   `json:"stable"`
	Beta                    *Version  `json:"beta,omitempty"`
	FetchedAt               time.Time `json:"fetched_at"`
}

// versionResponse is the wire shape of the control-plane version endpoint,
// GET /app/version: {supported, latest: {stable, beta?}}.
type versionResponse struct {
	Supported bool `json:"supported"`
	Latest    struct {
		Stable Version  `json:"stable"`
		Beta   *Version `json:"beta,omitempty"`
	} `json:"latest"`
}

func (r versionResponse) toCache(fetchedAt time.Time) VersionCache {
	return VersionCache{
		CurrentVersionSupported: r.Supported,
		Stable:                  r.Latest.Stable,
		Beta:                    r.Latest.Beta,
		FetchedAt:               fetchedAt,
	}
}
