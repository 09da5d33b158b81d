package relaylist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/nacl/sign"

	"github.com/tunnelkeep/tunnelkeepd/internal/restclient"
)

// timestampPath and dataPathPrefix mirror spec.md §6's content-addressed
// relay list transport.
const (
	timestampPath  = "/trl/v0/timestamps/latest"
	dataPathPrefix = "/trl/v0/data/"
)

// ErrStaleTimestamp is returned when the server's signed timestamp is
// older than the one already cached, which would indicate a rollback.
var ErrStaleTimestamp = errors.New("relaylist: signed timestamp is not monotonically increasing")

// ErrBadSignature is returned when the signed timestamp's signature does
// not verify against the configured trusted public key.
var ErrBadSignature = errors.New("relaylist: timestamp signature verification failed")

// ErrDigestMismatch is returned when the fetched content's sha256 does not
// match the digest advertised by the signed timestamp.
var ErrDigestMismatch = errors.New("relaylist: content digest does not match advertised digest")

// signedTimestamp is the body returned by timestampPath: a digest pointing
// at the current relay list content, a timestamp, and a NaCl (Ed25519)
// signed envelope wrapping "digest|timestamp" (the timestamp formatted as
// RFC3339Nano), produced by golang.org/x/crypto/nacl/sign.
type signedTimestamp struct {
	Digest    string    `json:"digest"`
	Timestamp time.Time `json:"timestamp"`
	Signature []byte    `json:"signature"` // nacl/sign.Sign output: sig || payload
}

func (s signedTimestamp) signedPayload() []byte {
	return []byte(s.Digest + "|" + s.Timestamp.Format(time.RFC3339Nano))
}

// Fetcher retrieves and verifies relay lists from the control plane.
type Fetcher struct {
	client        *restclient.Client
	trustedPubKey *[32]byte
	logger        *slog.Logger
}

// NewFetcher creates a Fetcher. trustedPubKey verifies the signed
// timestamp; a nil key disables signature verification (used in tests).
func NewFetcher(client *restclient.Client, trustedPubKey *[32]byte, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:        client,
		trustedPubKey: trustedPubKey,
		logger:        logger.With("component", "relaylist"),
	}
}

// Refresh fetches the latest signed timestamp and, if it advertises a
// digest newer than what cache already holds, fetches and verifies the
// relay list content and updates cache. Returns whether the cache changed.
func (f *Fetcher) Refresh(ctx context.Context, cache *Cache) (bool, error) {
	var ts signedTimestamp
	if err := f.client.GetJSON(ctx, timestampPath, &ts); err != nil {
		return false, fmt.Errorf("relaylist: fetch timestamp: %w", err)
	}

	if err := f.verify(ts); err != nil {
		return false, err
	}

	if ts.Timestamp.Before(cache.Timestamp()) {
		return false, ErrStaleTimestamp
	}
	if ts.Digest == cache.Digest() {
		return false, nil
	}

	body, status, err := f.client.GetBytes(ctx, dataPathPrefix+ts.Digest)
	if err != nil {
		return false, fmt.Errorf("relaylist: fetch data: %w", err)
	}
	if status == http.StatusNotModified {
		list, _ := cache.Get()
		cache.Update(list, ts.Digest, ts.Timestamp)
		return false, nil
	}

	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != ts.Digest {
		return false, ErrDigestMismatch
	}

	var list RelayList
	if err := json.Unmarshal(body, &list); err != nil {
		return false, fmt.Errorf("relaylist: decode relay list: %w", err)
	}

	cache.Update(list, ts.Digest, ts.Timestamp)
	f.logger.Info("relay list updated", "digest", ts.Digest, "relays", len(list.Relays))
	return true, nil
}

func (f *Fetcher) verify(ts signedTimestamp) error {
	if f.trustedPubKey == nil {
		return nil
	}
	opened, ok := sign.Open(nil, ts.Signature, f.trustedPubKey)
	if !ok || string(opened) != string(ts.signedPayload()) {
		return ErrBadSignature
	}
	return nil
}
